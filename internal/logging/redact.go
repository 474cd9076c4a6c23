package logging

import (
	"regexp"
	"strings"
)

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// secretPatterns match credentials that commonly appear on command lines or
// in terminal banners. The replacement keeps any key prefix.
var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`), RedactedValue},
	{regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api_key)\s*[=:]\s*)["']?[^\s"']+["']?`), "${1}" + RedactedValue},
	{regexp.MustCompile(`(--password[= ])\S+`), "${1}" + RedactedValue},
	{regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`), RedactedValue},
}

// Redact masks every literal occurrence of secrets in s, then any value that
// looks like an inline credential. Empty secrets are ignored.
func Redact(s string, secrets ...string) string {
	result := s
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		result = strings.ReplaceAll(result, secret, RedactedValue)
	}
	for _, p := range secretPatterns {
		result = p.re.ReplaceAllString(result, p.repl)
	}
	return result
}
