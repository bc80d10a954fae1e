package birthdays

import (
	"strings"
	"unicode"
)

// separator sits between a display name and the digits relocated out of it.
const separator = " - "

// Normalize turns a scraped label into a display name. Digit runs embedded in
// the label (mutual-friend counts, ages and similar noise) are moved behind a
// " - " suffix instead of being dropped: "Jane Doe 3" becomes "Jane Doe - 3".
// Whitespace is collapsed. Normalize is idempotent.
func Normalize(raw string) string {
	var (
		groups []string
		name   strings.Builder
		digits strings.Builder
	)
	flush := func() {
		if digits.Len() > 0 {
			groups = append(groups, digits.String())
			digits.Reset()
		}
	}
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
			continue
		}
		if digits.Len() > 0 {
			flush()
			name.WriteRune(' ')
		}
		name.WriteRune(r)
	}
	flush()

	cleaned := strings.Trim(strings.Join(strings.Fields(name.String()), " "), " -")
	if len(groups) == 0 {
		return cleaned
	}
	suffix := strings.Join(groups, " ")
	if cleaned == "" {
		return suffix
	}
	return cleaned + separator + suffix
}
