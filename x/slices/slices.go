// Package slices provides additional slice or string helpers.
package slices

import "strings"

// StringsCoalesce returns the first non-empty string value
func StringsCoalesce(str ...string) string {
	for _, s := range str {
		if s != "" {
			return s
		}
	}
	return ""
}

// StringUpto returns the beginning of the string up to `max` characters
func StringUpto(str string, max int) string {
	if len(str) > max {
		return str[:max]
	}
	return str
}

// StringContainsOneOf returns true if the string contains one of the provided values
func StringContainsOneOf(str string, values []string) bool {
	for _, v := range values {
		if strings.Contains(str, v) {
			return true
		}
	}
	return false
}

// UniqueStrings removes duplicates from the slice, preserving the order
// of the first occurrence of each value.
func UniqueStrings(list []string) []string {
	seen := make(map[string]bool, len(list))
	res := make([]string, 0, len(list))
	for _, v := range list {
		if !seen[v] {
			seen[v] = true
			res = append(res, v)
		}
	}
	return res
}
