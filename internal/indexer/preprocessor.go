package indexer

import (
	"strings"
	"unicode"
)

// Preprocess cleans extracted page text before chunking: line endings become "\n",
// control characters are dropped, runs of spaces and tabs collapse to one space,
// trailing spaces are removed from lines, and more than one blank line collapses into
// a single paragraph break.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	newlines := 0
	for _, r := range text {
		switch {
		case r == '\n':
			pendingSpace = false
			newlines++
		case r == ' ' || r == '\t' || unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r):
			// dropped
		default:
			if b.Len() > 0 {
				if newlines > 0 {
					b.WriteString(strings.Repeat("\n", min(newlines, 2)))
				} else if pendingSpace {
					b.WriteByte(' ')
				}
			}
			b.WriteRune(r)
			pendingSpace = false
			newlines = 0
		}
	}
	return b.String()
}
