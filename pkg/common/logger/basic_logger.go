package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// BasicLogger writes human readable, colored lines. Used when stdout is a terminal.
type BasicLogger struct {
	out     io.Writer
	verbose bool
}

func NewLogger(verbose bool) *BasicLogger {
	return &BasicLogger{out: os.Stdout, verbose: verbose}
}

// NewLoggerWithWriter is used by tests to capture output.
func NewLoggerWithWriter(w io.Writer, verbose bool) *BasicLogger {
	return &BasicLogger{out: w, verbose: verbose}
}

func (l *BasicLogger) Title(msg string, args ...any) {
	l.print(color.New(color.Bold).Sprint(format(msg, args...)))
}

func (l *BasicLogger) Info(msg string, args ...any) {
	l.print(format(msg, args...))
}

func (l *BasicLogger) Warn(msg string, args ...any) {
	l.print(color.YellowString("Warning: %s", format(msg, args...)))
}

func (l *BasicLogger) Error(msg string, args ...any) {
	l.print(color.RedString("Error: %s", format(msg, args...)))
}

func (l *BasicLogger) Debug(msg string, args ...any) {
	if !l.verbose {
		return
	}
	l.print(color.HiBlackString(format(msg, args...)))
}

func (l *BasicLogger) print(line string) {
	_, _ = fmt.Fprintln(l.out, strings.TrimRight(line, "\n"))
}

func format(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
