package util

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// mirrors the check the mobile screens ran before enabling "send code"
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SanitizeInput escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious reports markup or template fragments in free text
func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}
	lower := strings.ToLower(s)
	for _, c := range badChars {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// NormalizeEmail trims and lowercases an address without validating it
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail is a syntactic guard only: local@domain, both parts
// non-empty, domain containing a dot, no whitespace.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// MaskEmail keeps the first three characters of the local part
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}
	name, domain := parts[0], parts[1]
	if n := utf8.RuneCountInString(name); n > 3 {
		runes := []rune(name)
		name = string(runes[:3]) + strings.Repeat("*", n-3)
	}
	return name + "@" + domain
}
