// Package config provides server configuration for DirMesh.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (ports, intervals, TLS files, seeds)
//   - sanitize.go: Log sanitization (hide the SHARE secret)
//   - federation.go: Mapping onto the node and federation components
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and flags.
package config
