// Package util holds small helpers shared across the service.
package util

import (
	"regexp"
	"strings"
)

// MaxSanitizeLength is the maximum input length fed to the redaction
// patterns; longer input is truncated first.
const MaxSanitizeLength = 64 * 1024

var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	// Password patterns
	{regexp.MustCompile(`(?i)(password|passwd|pwd)[\s:=]+[^\s\n]+`), "$1=REDACTED"},
	{regexp.MustCompile(`(?i)"password"\s*:\s*"[^"]+"`), `"password":"REDACTED"`},

	// Token patterns
	{regexp.MustCompile(`(?i)(token|auth|authorization)[\s:=]+[^\s\n]+`), "$1=REDACTED"},
	{regexp.MustCompile(`(?i)"token"\s*:\s*"[^"]+"`), `"token":"REDACTED"`},
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]+`), "bearer REDACTED"},

	// API key patterns
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)[\s:=]+[^\s\n]+`), "$1=REDACTED"},
	{regexp.MustCompile(`(?i)"api[_-]?key"\s*:\s*"[^"]+"`), `"api_key":"REDACTED"`},

	// Credentials embedded in URLs
	{regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`), "://REDACTED:REDACTED@"},
}

// SanitizeError redacts credentials from an error message before logging.
// Provider and source errors can carry request URLs and auth material.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString redacts passwords, tokens and API keys from a string.
func SanitizeString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > MaxSanitizeLength {
		s = s[:MaxSanitizeLength] + "... [truncated]"
	}
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// Defang rewrites an indicator so it cannot be accidentally clicked or
// resolved when pasted into chat or tickets: dots become [.].
func Defang(indicator string) string {
	return strings.ReplaceAll(indicator, ".", "[.]")
}

// Refang reverses Defang.
func Refang(indicator string) string {
	return strings.ReplaceAll(indicator, "[.]", ".")
}
