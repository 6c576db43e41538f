package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of any credential-bearing attribute.
const RedactedValue = "[REDACTED]"

// sensitiveFragments match case-insensitively anywhere in a key, so
// jwt_secret, bearer_token and journal_dsn are all caught.
var sensitiveFragments = []string{
	"secret",
	"token",
	"password",
	"authorization",
	"dsn",
}

// Sensitive reports whether key names a credential that must never reach a log
// sink in clear text.
func Sensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// redact masks string and stringer values under sensitive keys. Empty values
// pass through untouched.
func redact(attr slog.Attr) slog.Attr {
	if !Sensitive(attr.Key) {
		return attr
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		return attr
	}
	if strings.TrimSpace(value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
