// Package logging provides the component-tagged structured logger used
// across doublelogpvalue.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Fields carries structured key/value pairs for a log event.
type Fields map[string]interface{}

// Logger wraps a zerolog.Logger and tags every event with a component.
type Logger struct {
	logger zerolog.Logger
}

// Options selects the level and output format.
type Options struct {
	Level string
	JSON  bool
}

// New returns a logger writing to w. JSON output is used when opts.JSON is
// set, otherwise a human readable console format.
func New(w io.Writer, opts Options) *Logger {
	if !opts.JSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	logger := zerolog.New(w).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()

	return &Logger{logger: logger}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// ParseLevel maps debug|info|warn|error to a zerolog level. Unknown or
// empty strings give info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Info(component, message string, fields Fields) {
	send(l.logger.Info(), component, fields, message)
}

func (l *Logger) Warning(component, message string, fields Fields) {
	send(l.logger.Warn(), component, fields, message)
}

func (l *Logger) Debug(component, message string, fields Fields) {
	send(l.logger.Debug(), component, fields, message)
}

// Error logs err under component. An empty message defaults to
// "operation failed".
func (l *Logger) Error(component string, err error, message string, fields Fields) {
	if message == "" {
		message = "operation failed"
	}
	send(l.logger.Error().Err(err), component, fields, message)
}

func send(event *zerolog.Event, component string, fields Fields, message string) {
	event = event.Str("component", component)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(message)
}
