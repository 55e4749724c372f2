package validation

import (
	"regexp"
	"strings"
	"unicode"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Phone: optional leading +, then digits, spaces, dashes, dots or parentheses.
var phoneRe = regexp.MustCompile(`^\+?[0-9\s\-().]{7,20}$`)

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidPhone accepts 7-20 characters with at least 7 digits.
func IsValidPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	if !phoneRe.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 7
}

// IsValidPassword requires at least 8 characters with a letter and a digit.
func IsValidPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLetter, hasDigit := false, false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// IsBlank reports whether s is empty after trimming whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// MissingFields returns the names of blank required fields in the given order.
func MissingFields(fields ...[2]string) []string {
	var missing []string
	for _, f := range fields {
		if IsBlank(f[1]) {
			missing = append(missing, f[0])
		}
	}
	return missing
}
