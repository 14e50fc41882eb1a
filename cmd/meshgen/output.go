package main

import (
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// stderr receives all status output so stdout stays clean for JSON and
// piped listings. Tests swap it for a buffer.
var stderr io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// printMark writes one marked status line: a colored glyph, then the message.
func printMark(color, mark, format string, args ...any) {
	fmt.Fprintln(stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printMark(colorGreen, "✓", format, args...) }

func printError(format string, args ...any) { printMark(colorRed, "✗", format, args...) }

func printWarning(format string, args ...any) { printMark(colorYellow, "⚠", format, args...) }

func printStep(format string, args ...any) { printMark(colorCyan, "→", format, args...) }

// printStatus renders one indented "Label: value" line; the status and
// generation result views are built from these.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
