// Package sanitize turns raw terminal text captured from a remote shell into
// plain output lines.
package sanitize

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Normalize removes escape sequences and carriage returns, drops lines that
// are blank, and trims the result. Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	text := ansi.Strip(raw)
	text = strings.ReplaceAll(text, "\r", "")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Clean normalizes raw command output and drops its first line, which is the
// shell's echo of the command itself.
func Clean(raw string) string {
	text := Normalize(raw)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return ""
}
