package util

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// TrimName is the comparison form for case-sensitive name matching.
func TrimName(name string) string {
	return strings.TrimSpace(name)
}

// FoldName is the comparison form for case-insensitive name matching.
func FoldName(name string) string {
	return folder.String(strings.TrimSpace(name))
}

// SameName compares names ignoring surrounding whitespace and case.
func SameName(a, b string) bool {
	return FoldName(a) == FoldName(b)
}

// NormalizeLineBreaks turns pasted text into LF separated lines. Some
// clipboard paths replace newlines with non-breaking spaces.
func NormalizeLineBreaks(input string) string {
	s := strings.ReplaceAll(input, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\u00a0", "\n")
}

// RemoveFormatFromString strips layout whitespace from scraped cell text
func RemoveFormatFromString(input string) string {
	return strings.Join(strings.Fields(input), " ")
}

// DeleteEmpty drops empty strings
func DeleteEmpty(s []string) []string {
	var r []string
	for _, str := range s {
		if strings.TrimSpace(str) != "" {
			r = append(r, str)
		}
	}
	return r
}
