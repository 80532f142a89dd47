// Package cli carries the command-line plumbing shared by the proctor
// commands: the scripted in-process runner behind `run`, output format
// selection, and the table renderers for run reports and stored
// session inspection.
package cli
