package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxErrorTextLength bounds error text stored in failure telemetry.
	MaxErrorTextLength = 1000
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens, opaque or JWT shaped
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-_.~+/]+=*`)

	// key=..., api_key=..., refresh_token=..., access_token=..., client_secret=...
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key|refresh_token|access_token|client_secret)=[A-Za-z0-9\-_./]{8,}`)

	// OpenAI / Anthropic style secret keys that show up verbatim in SDK errors
	secretKeyPattern = regexp.MustCompile(`sk-(ant-)?[A-Za-z0-9\-_]{16,}`)

	// Google OAuth refresh tokens
	googleTokenPattern = regexp.MustCompile(`1//[A-Za-z0-9\-_]{20,}`)

	// user:pass@host format
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError renders err with credentials scrubbed. Use it before logging
// provider errors or writing them into failure records.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText scrubs credentials from arbitrary text.
func SanitizeText(s string) string {
	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = googleTokenPattern.ReplaceAllString(sanitized, RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// TruncateString truncates a string to maxLen bytes and adds ellipsis if needed.
// The cut never splits a UTF-8 sequence.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
