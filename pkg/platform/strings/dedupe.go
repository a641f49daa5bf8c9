// Package strings provides string normalization helpers shared by name
// matching and report formatting.
package strings

import (
	"strings"
	"unicode"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  Tagum ", "Panabo", "Tagum", "", "  "})
//	// Returns: []string{"Tagum", "Panabo"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// CollapseSpaces trims s and folds every internal run of whitespace into a
// single ASCII space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// NormalizeName lowercases and collapses a personal name for comparison.
//
//	NormalizeName("  Juan   DELA Cruz ") // "juan dela cruz"
func NormalizeName(s string) string {
	return strings.ToLower(CollapseSpaces(s))
}

// FullName joins given and family names into the comparison form used for
// edit-distance ranking.
func FullName(first, last string) string {
	return NormalizeName(first + " " + last)
}
