package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeLabel strips all whitespace from a UI label. Portal menu
// labels pick up stray spaces and full-width padding between releases,
// so labels are always compared in normalized form.
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	return whitespaceRegex.ReplaceAllString(label, "")
}

// LabelEquals compares two UI labels ignoring whitespace.
func LabelEquals(a, b string) bool {
	return NormalizeLabel(a) == NormalizeLabel(b)
}
