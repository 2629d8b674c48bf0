package logger

import (
	"log/slog"
	"strings"
)

// Attribute keys whose values are always redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"credential",
	"auth",
	"bearer",
	"invite",
}

// Keys that contain a sensitive pattern but only carry identifiers.
var safeKeys = map[string]bool{
	"key_fingerprint": true,
	"key_source":      true,
	"kv_key":          true,
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		if v != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		if looksLikeKey(v) {
			return slog.String(a.Key, RedactString(v))
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	return a
}

// RedactString masks a value that looks like raw key material, keeping the
// first and last four characters. Other values are returned unchanged.
func RedactString(value string) string {
	if !looksLikeKey(value) {
		return value
	}
	return value[:4] + "****" + value[len(value)-4:]
}

// IsSensitiveKey checks if an attribute key suggests sensitive content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if safeKeys[k] {
		return false
	}
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether value looks like raw key material.
func IsSensitiveValue(value string) bool {
	return looksLikeKey(value)
}

// looksLikeKey matches 64 hex characters, the shape of a sync key.
func looksLikeKey(v string) bool {
	if len(v) != 64 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
