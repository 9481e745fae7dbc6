// Package config defines the server configuration structure.
package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Federation.Seeds = append([]string(nil), cfg.Federation.Seeds...)
	sanitized.Federation.SecureSeeds = append([]string(nil), cfg.Federation.SecureSeeds...)

	if sanitized.Security.Secret != "" {
		sanitized.Security.Secret = maskSecret(sanitized.Security.Secret)
	}
	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
