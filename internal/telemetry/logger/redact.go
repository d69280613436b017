package logger

import (
	"log/slog"
	"strings"
)

// Keys whose values identify a player profile. They are partially masked so
// log lines stay correlatable without exposing the identifier.
var profileKeyPatterns = []string{
	"owner",
	"profile",
}

// Keys whose values are fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"auth",
	"bearer",
}

// profilesSegment is the path segment preceding an owner ID in save paths.
const profilesSegment = "profiles"

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive masks string attributes by key. Groups are handled
// recursively.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		strVal := a.Value.String()
		if strVal == "" {
			return a
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		if isProfileKey(a.Key) {
			return slog.String(a.Key, maskValue(strVal))
		}
		if strings.Contains(strVal, "/"+profilesSegment+"/") {
			return slog.String(a.Key, RedactPath(strVal))
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}
	return a
}

// maskValue keeps the first and last two characters of value.
// Values of six characters or fewer are masked entirely.
func maskValue(value string) string {
	if len(value) <= 6 {
		return "***"
	}
	return value[:2] + "..." + value[len(value)-2:]
}

// RedactPath masks the owner segment of an owner-scoped save path
// (".../profiles/<owner>/...").
func RedactPath(path string) string {
	parts := strings.Split(path, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == profilesSegment && parts[i+1] != "" {
			parts[i+1] = maskValue(parts[i+1])
		}
	}
	return strings.Join(parts, "/")
}

// IsSensitiveKey checks if a key name suggests secret content.
func IsSensitiveKey(key string) bool {
	return containsAny(strings.ToLower(key), sensitiveKeyPatterns)
}

func isProfileKey(key string) bool {
	return containsAny(strings.ToLower(key), profileKeyPatterns)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
