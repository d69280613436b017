package config

import "strings"

// Sanitize returns a copy of the config with profile identifiers masked.
//
// This is used for logging configuration.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	sanitized.Restore.AllowedModes = append([]string(nil), cfg.Restore.AllowedModes...)

	if sanitized.Storage.OwnerID != "" {
		sanitized.Storage.OwnerID = maskSecret(sanitized.Storage.OwnerID)
	}

	return &sanitized
}

// maskSecret masks a value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
