package logging

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxLoggedValue = 100

// RedactPhone keeps only the last four digits of a phone number.
func RedactPhone(phone string) string {
	var digits []rune
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + string(digits[len(digits)-4:])
}

// Sanitize strips control characters, so user input cannot forge log
// lines, and truncates to 100 characters.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if utf8.RuneCountInString(s) > maxLoggedValue {
		s = string([]rune(s)[:maxLoggedValue])
	}
	return s
}
