package flows

import (
	"strings"
)

// NormalizeUsername is the canonical key for usernames in storage and in
// attempt counters.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizePhone strips spaces, dashes, dots and parentheses. The result is
// what uniqueness is enforced on.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}
