package observability

import "regexp"

// Patterns for secrets that must never appear in event messages or
// log lines, matched case-insensitively against free-form text.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key\s*[=:]\s*)\S+`),
	regexp.MustCompile(`(?i)(authorization\s*[=:]\s*)\S+(\s+\S+)?`),
	regexp.MustCompile(`(?i)\bbearer\s+\S+`),
	regexp.MustCompile(`(?i)(token\s*[=:]\s*)\S+`),
}

// Redact masks credential-shaped substrings in s. It is applied to
// every event message, detail and error string before publication.
func Redact(s string) string {
	for _, re := range redactPatterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// RedactError is a nil-safe convenience for error values.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}
