// Package logging adapts zerolog to the tickwire.Logger interface.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/tickwire"
)

// Environment overrides read by Console.
const (
	EnvLevel   = "TICKWIRE_LOG_LEVEL"
	EnvNoColor = "TICKWIRE_LOG_NOCOLOR"
)

// Logger is a tickwire.Logger backed by zerolog.
type Logger struct {
	zl zerolog.Logger
}

var _ tickwire.Logger = (*Logger)(nil)

// New wraps an existing zerolog logger.
func New(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Console returns a human readable logger for app writing to w. The level
// can be overridden from the environment, and EnvNoColor can turn colours off.
func Console(w io.Writer, app string, level zerolog.Level, noColor bool) *Logger {
	if v := os.Getenv(EnvLevel); v != "" {
		if parsed, err := ParseLevel(v); err == nil {
			level = parsed
		}
	}
	if v, err := strconv.ParseBool(os.Getenv(EnvNoColor)); err == nil && v {
		noColor = true
	}

	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}
	zl := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// ParseLevel accepts zerolog level names plus "warning".
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
	if level == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
	return level, nil
}

// Zerolog exposes the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(fields(args)).Logger()}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(l.zl.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(l.zl.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(l.zl.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(l.zl.Error(), msg, args) }

func (l *Logger) log(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	event.Fields(fields(args)).Msg(msg)
}

// fields turns alternating key/value arguments into a map. A trailing key
// without a value is kept under "!BADKEY".
func fields(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m := make(map[string]any, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			m["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		m[key] = args[i+1]
	}
	return m
}
