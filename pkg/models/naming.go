package models

import (
	"strings"
	"unicode"
)

// CamelToUnderline converts firstName to first_name. Every upper-case rune
// after the first is preceded by an underscore.
func CamelToUnderline(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// UnderlineToCamel converts first_name to firstName
func UnderlineToCamel(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	upper := false
	for _, r := range strings.ToLower(s) {
		if r == '_' {
			upper = sb.Len() > 0
			continue
		}
		if upper {
			sb.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
