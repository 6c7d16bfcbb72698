package sqlite

import "strings"

// placeholder returns the positional parameter marker; SQLite ignores the position.
func placeholder(int) string {
	return "?"
}

// placeholders returns n comma separated markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
