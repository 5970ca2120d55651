// Package utils holds small parsing helpers for query parameters. They carry
// no gateway semantics.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a base-10 int after trimming surrounding spaces.
// Empty or unparsable input yields def.
//
//	n := utils.AtoiDefault(" 42", 0) // 42
//	n = utils.AtoiDefault("x", 5)    // 5
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampLimit maps a page size into [1, max]; non-positive values become def.
func ClampLimit(n, def, max int) int {
	if n <= 0 {
		n = def
	}
	if n > max {
		n = max
	}
	return n
}
