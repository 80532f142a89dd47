// Package strings holds small string helpers shared by the table
// renderers.
package strings

import (
	"strings"
)

// DefaultCellMaxLen is the default maximum length for free-form table
// cells, long enough for a handful of outcome pairs.
const DefaultCellMaxLen = 60

// MinTruncateLen is the smallest maxLen TruncateCell accepts. Anything
// shorter leaves no room for content plus "...".
const MinTruncateLen = 4

// TruncateCell flattens s onto a single line and caps it at maxLen
// runes, marking a cut with "...". Whitespace runs, including
// newlines, collapse to single spaces so multi-valued outcomes render
// as one table cell.
func TruncateCell(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	// Rune-based slicing keeps multi-byte characters whole.
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
