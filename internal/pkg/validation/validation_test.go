package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidPhone(t *testing.T) {
	for _, p := range []string{"+91 98765 43210", "(555) 123-4567", "0123456789"} {
		assert.True(t, IsValidPhone(p), p)
	}
	for _, p := range []string{"", "12345", "call me", "+1-(--)-----", "12345678901234567890123"} {
		assert.False(t, IsValidPhone(p), p)
	}
}

func TestIsValidPassword(t *testing.T) {
	assert.True(t, IsValidPassword("harvest2024"))
	assert.False(t, IsValidPassword("short1"))
	assert.False(t, IsValidPassword("onlyletters"))
	assert.False(t, IsValidPassword("1234567890"))
}

func TestMissingFields(t *testing.T) {
	missing := MissingFields(
		[2]string{"full_name", "  "},
		[2]string{"phone", "9876543210"},
		[2]string{"location", ""},
	)
	assert.Equal(t, []string{"full_name", "location"}, missing)
	assert.Empty(t, MissingFields([2]string{"a", "x"}))
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("farmer@example.com"))
	assert.False(t, IsValidEmail("farmer@example"))
}
