// Package config loads the delivery service configuration.
//
// Configuration is a single YAML file. Load starts from Default and
// overlays whatever the file sets, so a missing file or a file that
// names only a few keys both yield a complete, usable configuration.
package config
