package common

import (
	"strings"
	"unicode"
)

// IsHex returns true if the string contains only hexadecimal characters
func IsHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// IsInvisible reports whether r is a zero-width, joiner or bidi formatting
// character commonly used to disguise clipboard content.
func IsInvisible(r rune) bool {
	switch {
	case r >= 0x200B && r <= 0x200F: // zero-width space .. right-to-left mark
		return true
	case r >= 0x202A && r <= 0x202E: // bidi embeddings and overrides
		return true
	case r >= 0x2060 && r <= 0x206F: // word joiner, invisible operators, bidi isolates
		return true
	case r == 0xFEFF: // byte order mark / zero-width no-break space
		return true
	}
	return false
}

// ContainsInvisible returns true if any rune of s is invisible formatting
func ContainsInvisible(s string) bool {
	return strings.IndexFunc(s, IsInvisible) >= 0
}

// StripSpaceAndInvisible removes all whitespace and invisible formatting
// characters, wherever they appear in s.
func StripSpaceAndInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || IsInvisible(r) {
			return -1
		}
		return r
	}, s)
}

// CollapseSpace trims s and folds every run of whitespace into one space
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HasMixedCase returns true if s contains both upper and lower case letters
func HasMixedCase(s string) bool {
	return s != strings.ToLower(s) && s != strings.ToUpper(s)
}

// Truncate shortens s to max runes, appending "..." when something was cut
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
