// Package config defines the application configuration structure and
// loading logic. Settings are grouped by subsystem, populated from
// defaults, an optional YAML file, and CRYPTIQUE_-prefixed environment
// variables, then validated before use.
package config
