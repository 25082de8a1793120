// Package printer renders colored CLI output.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/dyluth/hark/pkg/blackboard"
)

func init() {
	// Users can disable with NO_COLOR
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green   = color.New(color.FgGreen)
	yellow  = color.New(color.FgYellow)
	red     = color.New(color.FgRed, color.Bold)
	cyan    = color.New(color.FgCyan)
	magenta = color.New(color.FgMagenta, color.Bold)
	faint   = color.New(color.Faint)
)

// Out and Err are where output goes. Tests swap them for buffers.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Out, msg)
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Warning prints a warning message in yellow with a warning prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(Out, msg)
}

// Error prints a title, explanation and suggestions to Err and returns an
// error carrying only the title, for Cobra with SilenceErrors set.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value context lines, printed in key order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(Err, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Err, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(Err, "\n")
		for _, k := range keys {
			fmt.Fprintf(Err, "  %s: %s\n", k, context[k])
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(Err, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(Err, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(Err, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(Err, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s", fmt.Sprintf(format, a...))
}

// Message renders an emitted message as a coloured block:
//
//	[HIGH] USER margem_baixa
//	Margem baixa
//	A margem do pedido está em 3%
//	  (ver-pedido) Ver pedido
//	  hash 9f2c... id 1b4e...
func Message(msg blackboard.OutputMessage) {
	severityColor(msg.Severity).Fprintf(Out, "[%s]", strings.ToUpper(string(msg.Severity)))
	fmt.Fprintf(Out, " %s", msg.Channel)
	if msg.Topic != "" {
		faint.Fprintf(Out, " %s", msg.Topic)
	}
	fmt.Fprintln(Out)

	if msg.Title != "" {
		fmt.Fprintln(Out, msg.Title)
	}
	if msg.Message != "" {
		fmt.Fprintln(Out, msg.Message)
	}
	for _, a := range msg.Actions {
		cyan.Fprintf(Out, "  (%s) %s\n", a.ID, a.Label)
	}
	faint.Fprintf(Out, "  hash %s id %s\n", msg.SemanticHash, msg.ID)
}

func severityColor(s blackboard.Severity) *color.Color {
	switch s {
	case blackboard.SeverityCritical:
		return magenta
	case blackboard.SeverityHigh:
		return red
	case blackboard.SeverityMedium:
		return yellow
	case blackboard.SeverityLow:
		return cyan
	default:
		return green
	}
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Fprintln(Out, a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}
