package config

import "strings"

// Sanitize returns a copy of the config with secrets masked, for logging
// and `config show` style output.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	sanitized.Backend.Endpoints = append([]string(nil), cfg.Backend.Endpoints...)
	if sanitized.Backend.AuthToken != "" {
		sanitized.Backend.AuthToken = maskSecret(sanitized.Backend.AuthToken)
	}
	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
