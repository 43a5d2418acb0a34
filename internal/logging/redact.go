package logging

import (
	"net/http"
	"regexp"
	"strings"
)

// Header and field names whose values never reach a log line.
var sensitiveFields = []string{
	"authorization",
	"token",
	"secret",
	"password",
	"api_key",
	"apikey",
	"credential",
	"cookie",
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{8,}`),
	regexp.MustCompile(`(?i)(token|secret|password|api_key)[=:]["']?[a-zA-Z0-9+/=_.-]{8,}["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces credential-shaped substrings in s.
func Redact(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllString(s, RedactedValue)
	}
	return s
}

// RedactHeader returns a copy of h safe to log.
func RedactHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if IsSensitiveField(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = Redact(strings.Join(values, ","))
	}
	return out
}

// MaskPhone keeps the last four digits of a conversation key so log lines
// stay correlatable without carrying the full customer number.
func MaskPhone(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 4 {
		return id
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
