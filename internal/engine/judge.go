package engine

import (
	"strings"
)

// Judge reports whether actual matches expected after normalization. Both
// sides get the same treatment: line endings become \n, runs of blanks collapse
// to one space, trailing blanks on each line are dropped, and the text as a
// whole is trimmed. The comparison is case-sensitive and line
// breaks stay significant.
func Judge(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}

// Normalize applies the judge's whitespace policy to s.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(collapseBlanks(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func collapseBlanks(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	inRun := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; c {
		case ' ', '\t', '\f', '\v':
			if !inRun {
				b.WriteByte(' ')
			}
			inRun = true
		default:
			b.WriteByte(c)
			inRun = false
		}
	}
	return b.String()
}
