package birthdays

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"digit relocated", "Jane Doe 3", "Jane Doe - 3"},
		{"no digits", "Jane Doe", "Jane Doe"},
		{"digit glued to name", "Jane Doe3", "Jane Doe - 3"},
		{"embedded digits", "Ja2ne Doe", "Ja ne Doe - 2"},
		{"several runs", "Jane 12 Doe 3", "Jane Doe - 12 3"},
		{"whitespace collapsed", "  Jane \n\t Doe  ", "Jane Doe"},
		{"digits only", "42", "42"},
		{"hyphenated name kept", "Jean-Luc Picard 7", "Jean-Luc Picard - 7"},
		{"empty", "", ""},
		{"unicode", "Zoë Ålund 5", "Zoë Ålund - 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Jane Doe 3", "Jane 12 Doe 3", "42", "Jane - Doe 3", " -Jane- ", "A1B2C3", "Jean-Luc Picard 7", "",
	}
	for _, raw := range inputs {
		once := Normalize(raw)
		assert.Equal(t, once, Normalize(once), "raw %q", raw)
	}
}

func TestNormalize_NoEmbeddedDigits(t *testing.T) {
	inputs := []string{"Jane Doe 3", "Ja2ne Doe", "A1B2C3", "12 Jane", "Jane 12 Doe 3", "42"}
	for _, raw := range inputs {
		got := Normalize(raw)
		assert.False(t, hasEmbeddedDigits(got), "raw %q normalized to %q", raw, got)
	}
	assert.True(t, hasEmbeddedDigits("Ja2ne Doe"))
}

// hasEmbeddedDigits reports whether a display name carries digits anywhere
// other than in the relocated suffix.
func hasEmbeddedDigits(displayName string) bool {
	name := displayName
	if i := strings.LastIndex(displayName, separator); i >= 0 {
		name = displayName[:i]
	} else if strings.IndexFunc(displayName, func(r rune) bool { return !unicode.IsDigit(r) && r != ' ' }) < 0 {
		return false
	}
	return strings.IndexFunc(name, unicode.IsDigit) >= 0
}
