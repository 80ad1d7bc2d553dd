// Package obslog adapts github.com/rs/zerolog to the application.obslog
// port, replacing the teacher's bare-stdlib infrastructure/logging package
// (infrastructure/logging/log_logger.go) with structured, leveled logging.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"tzrecorder/application/obslog"
)

// Logger wraps a zerolog.Logger to satisfy application/obslog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing human-readable console output to w, tagged
// with the given node name on every event (w is typically os.Stderr in
// production and a buffer in tests).
func New(w io.Writer, node string) *Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	zl := zerolog.New(console).With().Timestamp().Str("node", node).Logger()
	return &Logger{zl: zl}
}

// NewJSON builds a Logger writing newline-delimited JSON, the shape
// operators typically want once a node runs under a log collector rather
// than a terminal.
func NewJSON(w io.Writer, node string) *Logger {
	zl := zerolog.New(w).With().Timestamp().Str("node", node).Logger()
	return &Logger{zl: zl}
}

// Default builds a Logger writing to os.Stderr, convenient for cmd/ wiring.
func Default(node string) *Logger {
	return New(os.Stderr, node)
}

func (l *Logger) Debug() obslog.Event { return &event{e: l.zl.Debug()} }
func (l *Logger) Info() obslog.Event  { return &event{e: l.zl.Info()} }
func (l *Logger) Warn() obslog.Event  { return &event{e: l.zl.Warn()} }
func (l *Logger) Error() obslog.Event { return &event{e: l.zl.Error()} }

// event wraps a single in-flight *zerolog.Event so its builder chain can
// satisfy the narrower obslog.Event interface.
type event struct {
	e *zerolog.Event
}

func (ev *event) Str(key, val string) obslog.Event {
	ev.e = ev.e.Str(key, val)
	return ev
}

func (ev *event) Uint64(key string, val uint64) obslog.Event {
	ev.e = ev.e.Uint64(key, val)
	return ev
}

func (ev *event) Int(key string, val int) obslog.Event {
	ev.e = ev.e.Int(key, val)
	return ev
}

func (ev *event) Err(err error) obslog.Event {
	ev.e = ev.e.Err(err)
	return ev
}

func (ev *event) Msg(msg string) {
	ev.e.Msg(msg)
}
