package logger

import (
	"log/slog"
	"strings"
)

// Key patterns whose values must never reach the log.
var sensitiveKeyPatterns = []string{
	"pin",
	"secret",
	"password",
	"plaintext",
	"private",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive replaces the value of any attribute whose key looks
// sensitive, whatever its kind (strings, byte slices via Any, ...).
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	if IsSensitiveKey(a.Key) && !isEmpty(a.Value) {
		return slog.String(a.Key, redactedValue)
	}
	return a
}

func isEmpty(v slog.Value) bool {
	switch v.Kind() {
	case slog.KindString:
		return v.String() == ""
	case slog.KindAny:
		if b, ok := v.Any().([]byte); ok {
			return len(b) == 0
		}
		return v.Any() == nil
	default:
		return false
	}
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
