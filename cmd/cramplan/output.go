package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// errOut receives status lines so stdout stays clean for data and MCP.
var errOut io.Writer = os.Stderr

var (
	colorRed    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	colorGreen  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	colorYellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	colorCyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	colorBold   = lipgloss.NewStyle().Bold(true)
)

// colorize renders text in style. lipgloss drops the escapes when the
// terminal has no color support; --no-color drops them everywhere.
func colorize(style lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return style.Render(text)
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(errOut, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(errOut, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(errOut, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(errOut, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(errOut, colorize(colorCyan, "→ "+msg))
}

func checkbox(done bool) string {
	if done {
		return colorize(colorGreen, "[x]")
	}
	return "[ ]"
}

func progressLabel(done, total int) string {
	if total == 0 {
		return "nothing scheduled"
	}
	return fmt.Sprintf("%d/%d done (%d%%)", done, total, done*100/total)
}
