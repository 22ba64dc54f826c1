package utils

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxMessageLength bounds a support message body, in characters.
const MaxMessageLength = 4000

var (
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

var (
	scriptTagRegex = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	onEventRegex   = regexp.MustCompile(`(?i)\s+on\w+\s*=`)
)

// SanitizeMessageBody trims a message body, removes script tags, inline event
// handlers and control characters, and enforces the length bounds.
func SanitizeMessageBody(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return "", ErrMessageTooLong
	}

	body = scriptTagRegex.ReplaceAllString(body, "")
	body = onEventRegex.ReplaceAllString(body, " ")
	body = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, body)
	body = strings.TrimSpace(body)

	if body == "" {
		return "", ErrEmptyMessage
	}
	return body, nil
}

// TruncateString truncates s to at most maxLen runes.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen])
}
