// Package confloader provides configuration loading mechanism.
//
// This package implements the configuration loader of dirmesh-server on
// top of koanf:
//
//   - Sources: a YAML file, DIRMESH_* environment variables and flag
//     overrides
//   - Typed unmarshaling into config.ServerConfig, durations as "10m"
//   - Watch support: callbacks when the configuration file changes
//
// Priority (highest to lowest):
//
//  1. Command-line flags
//  2. Environment variables
//  3. Configuration file
//  4. Default values
package confloader
