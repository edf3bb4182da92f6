package ui

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Success prints a green check line.
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, SuccessStyle().Render(SymbolSuccess)+" "+fmt.Sprintf(format, args...))
}

// Failure prints a red cross line.
func Failure(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ErrorStyle().Render(SymbolFail)+" "+fmt.Sprintf(format, args...))
}

// Warning prints a yellow warning line.
func Warning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, WarningStyle().Render(SymbolWarning)+" "+fmt.Sprintf(format, args...))
}

// KeyValue prints aligned "key  value" pairs, keys muted.
func KeyValue(w io.Writer, pairs ...[2]string) {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		fmt.Fprintln(w, "  "+MutedStyle().Render(padRight(p[0], width))+"  "+p[1])
	}
}

// Toggle renders an enabled/disabled marker.
func Toggle(enabled bool) string {
	if enabled {
		return SuccessStyle().Render(SymbolActive)
	}
	return MutedStyle().Render(SymbolPending)
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
