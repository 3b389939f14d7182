package record

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// ExtractEmail returns the first email-looking token in s, or "".
func ExtractEmail(s string) string {
	return emailPattern.FindString(s)
}

// EmailAddress is the address status emails go to: the email field, else
// the first address found in the free-form contact string.
func (c Contact) EmailAddress() string {
	if e := strings.TrimSpace(c.Email); e != "" {
		return e
	}
	return ExtractEmail(c.Phone)
}
