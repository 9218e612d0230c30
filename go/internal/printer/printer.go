// Package printer writes colored CLI output.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/mcdev12/flaglights/go/internal/models"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Out is where non-error output goes.
var Out io.Writer = os.Stdout

// Success prints a message in green with a checkmark prefix.
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Out, msg)
}

func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Warning prints a message in yellow with a warning prefix.
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(Out, msg)
}

// Error prints a titled error with an explanation and suggestions to
// stderr and returns a plain error for cobra, which is configured not to
// print it again.
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

// Step prints an emphasized progress line.
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s", fmt.Sprintf(format, a...))
}

// Field prints an aligned "label: value" line.
func Field(label string, value any) {
	faint.Fprintf(Out, "%-18s", label+":")
	fmt.Fprintf(Out, " %v\n", value)
}

// Flag renders a flag name in its track color.
func Flag(f models.Flag) string {
	name := strings.ToUpper(f.String())
	switch f {
	case models.FlagGreen:
		return green.Sprint(name)
	case models.FlagYellow, models.FlagSafety:
		return yellow.Sprint(name)
	case models.FlagRed:
		return red.Sprint(name)
	case models.FlagCheckered:
		return color.New(color.FgWhite, color.Bold).Sprint(name)
	}
	return faint.Sprint(name)
}

// Bool renders b as a colored yes/no.
func Bool(b bool) string {
	if b {
		return green.Sprint("yes")
	}
	return faint.Sprint("no")
}
