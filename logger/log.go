// Package logger is the logging layer used throughout fuss. Loggers are
// leveled, carry structured fields, and hand finished lines to a Printer.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	nocolor   = "0"
	red       = "31"
	green     = "38;5;48"
	yellow    = "33"
	gray      = "38;5;251"
	lightgray = "38;5;243"
	cyan      = "1;36"
)

const (
	DateFormat = "2006-01-02 15:04:05"
)

var windowsColors bool

type Logger interface {
	Debug(format string, v ...any)
	Error(format string, v ...any)
	Fatal(format string, v ...any)
	Notice(format string, v ...any)
	Warn(format string, v ...any)
	Info(format string, v ...any)

	WithFields(fields ...Field) Logger
	SetLevel(level Level)
	Level() Level
}

// Printer writes a single, fully formed log line.
type Printer interface {
	Print(level Level, msg string, fields Fields)
}

// ConsoleLogger is a Logger that filters by level and delegates output to a
// Printer.
type ConsoleLogger struct {
	level   *Level
	exitFn  func(int)
	fields  Fields
	printer Printer
}

// NewConsoleLogger returns a ConsoleLogger at NOTICE. exitFn is called after a
// Fatal line is printed.
func NewConsoleLogger(printer Printer, exitFn func(int)) Logger {
	level := NOTICE
	return &ConsoleLogger{
		level:   &level,
		exitFn:  exitFn,
		printer: printer,
	}
}

// WithFields returns a copy of the logger with the provided fields appended.
// The level is shared with the parent.
func (l *ConsoleLogger) WithFields(fields ...Field) Logger {
	clone := *l
	clone.fields = append(append(Fields{}, l.fields...), fields...)
	return &clone
}

// SetLevel sets the level for the logger
func (l *ConsoleLogger) SetLevel(level Level) {
	*l.level = level
}

func (l *ConsoleLogger) Level() Level {
	return *l.level
}

func (l *ConsoleLogger) Debug(format string, v ...any) {
	if l.Level() == DEBUG {
		l.printer.Print(DEBUG, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Error(format string, v ...any) {
	l.printer.Print(ERROR, fmt.Sprintf(format, v...), l.fields)
}

func (l *ConsoleLogger) Fatal(format string, v ...any) {
	l.printer.Print(FATAL, fmt.Sprintf(format, v...), l.fields)
	l.exitFn(1)
}

func (l *ConsoleLogger) Notice(format string, v ...any) {
	if l.Level() <= NOTICE {
		l.printer.Print(NOTICE, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Info(format string, v ...any) {
	if l.Level() <= INFO {
		l.printer.Print(INFO, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Warn(format string, v ...any) {
	if l.Level() <= WARN {
		l.printer.Print(WARN, fmt.Sprintf(format, v...), l.fields)
	}
}

// TextPrinter prints human readable lines, optionally coloured.
type TextPrinter struct {
	Colors bool
	Writer io.Writer

	mu sync.Mutex
}

func NewTextPrinter(w io.Writer) *TextPrinter {
	return &TextPrinter{
		Writer: w,
		Colors: ColorsAvailable(),
	}
}

func (l *TextPrinter) Print(level Level, msg string, fields Fields) {
	now := time.Now().Format(DateFormat)

	var b strings.Builder
	if l.Colors {
		levelColor := green
		messageColor := nocolor

		switch level {
		case DEBUG:
			levelColor = gray
			messageColor = gray
		case NOTICE:
			levelColor = cyan
		case WARN:
			levelColor = yellow
		case ERROR:
			levelColor = red
		case FATAL:
			levelColor = red
			messageColor = red
		}

		fmt.Fprintf(&b, "\x1b[%sm%s %-6s\x1b[0m \x1b[%sm%s\x1b[0m", levelColor, now, level, messageColor, msg)
		for _, field := range fields {
			fmt.Fprintf(&b, " \x1b[%sm%s=\x1b[0m%s", lightgray, field.Key(), field.String())
		}
	} else {
		fmt.Fprintf(&b, "%s %-6s %s", now, level, msg)
		for _, field := range fields {
			fmt.Fprintf(&b, " %s=%s", field.Key(), field.String())
		}
	}
	b.WriteByte('\n')

	// One line at a time
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.Writer, b.String())
}

// JSONPrinter prints one JSON object per line.
type JSONPrinter struct {
	Writer io.Writer

	mu sync.Mutex
}

func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{Writer: w}
}

func (p *JSONPrinter) Print(level Level, msg string, fields Fields) {
	line := make(map[string]string, len(fields)+3)
	for _, field := range fields {
		line[field.Key()] = field.String()
	}
	line["ts"] = time.Now().Format(time.RFC3339)
	line["level"] = level.String()
	line["msg"] = msg

	data, err := json.Marshal(line)
	if err != nil {
		data = fmt.Appendf(nil, `{"level":"ERROR","msg":%q}`, err.Error())
	}
	data = append(data, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Writer.Write(data) //nolint:errcheck // nowhere left to report it
}

// ColorsAvailable reports whether stderr is a terminal that can show colours.
func ColorsAvailable() bool {
	// Color support for windows is set in init
	if runtime.GOOS == "windows" && !windowsColors {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

var Discard = NewConsoleLogger(NewTextPrinter(io.Discard), func(int) {})
