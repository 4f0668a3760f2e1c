package diag

import (
	"io"

	"github.com/fatih/color"
)

// Colors used when pretty-printing diagnostics to a terminal: red for
// errors, yellow for warnings, cyan for info.
var (
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// FormatColored writes msgs to w, one per line, colorized by severity.
// Any embedding host (not only a packaged CLI) may want to dump diagnostics
// to a terminal during development, so it lives here rather than behind a
// CLI.
func FormatColored(w io.Writer, msgs []Diagnostic) {
	for _, m := range msgs {
		c := colorFor(m.Severity)
		c.Fprintf(w, "[%s:%d:%d] %s %d: %s\n", m.Stage, m.Line, m.Column, m.Severity, m.Code, m.Message())
	}
}

func colorFor(sev Severity) *color.Color {
	switch sev {
	case SeverityError:
		return errorColor
	case SeverityWarning:
		return warningColor
	default:
		return infoColor
	}
}
