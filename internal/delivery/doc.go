// Package delivery runs assessment sessions as a service.
//
// It has three layers. Library loads a directory of assessment YAML
// documents and can reload them when the directory changes. Service
// keeps the live sessions, one driver per candidate, serializing
// operations per session and persisting a snapshot after every
// operation. Server exposes the service over MCP on the stdio, SSE,
// or streamable HTTP transport.
package delivery
