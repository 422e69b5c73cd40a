package cwa

import (
	"strings"
	"unicode"
)

// Sanitize cleans user-supplied query text before it enters prompt assembly.
// Control characters other than newline and tab are dropped, and leading '#'
// runs are stripped per line so user text cannot spoof a section header in
// the assembled window.
func Sanitize(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, "#")
		if trimmed != line {
			lines[i] = strings.TrimLeft(trimmed, " ")
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
