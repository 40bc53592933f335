// Package redact strips sensitive fragments from strings before they are
// logged or echoed in API error responses: connection strings, tokens,
// secrets, file paths and host:port pairs that database and etcd errors
// tend to carry.
package redact

import "regexp"

// Redaction placeholders.
const (
	RedactedCredential = "[REDACTED_CREDENTIAL]"
	RedactedKey        = "[REDACTED_KEY]"
	RedactedPath       = "[REDACTED_PATH]"
	RedactedHost       = "[REDACTED_HOST]"
)

var (
	dbConnRegex = regexp.MustCompile(`(?i)(postgres|postgresql|mysql|etcd)://[^@\s]+@`)
	secretRegex = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key)(['"\s:=]+)[^'"&\s]{3,}`)
	jwtRegex    = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)
	pathRegex   = regexp.MustCompile(`(/[\w.-]+){2,}`)
	hostRegex   = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}(?::\d{1,5})?\b`)

	placeholders = []struct {
		pattern     *regexp.Regexp
		replacement string
	}{
		{dbConnRegex, RedactedCredential},
		{secretRegex, RedactedKey},
		{jwtRegex, "[REDACTED_JWT]"},
		{pathRegex, RedactedPath},
		{hostRegex, RedactedHost},
	}
)

// String redacts sensitive fragments from the input.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, p := range placeholders {
		result = p.pattern.ReplaceAllString(result, p.replacement)
	}
	return result
}

// Error redacts an error's message. A nil error yields the empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
