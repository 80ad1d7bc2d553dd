// Package obslog defines the logging port every component depends on,
// mirroring the teacher's application.Logger seam
// (infrastructure/logging/log_logger.go in the source pack) so that no
// package reaches for the global logger directly.
package obslog

// Logger is the narrow logging interface components are constructed with.
// Fields are attached on the Event a level method returns, matching
// zerolog's event-builder idiom at the call site.
type Logger interface {
	Debug() Event
	Info() Event
	Warn() Event
	Error() Event
}

// Event is a single structured log entry under construction.
type Event interface {
	Str(key, val string) Event
	Uint64(key string, val uint64) Event
	Int(key string, val int) Event
	Err(err error) Event
	Msg(msg string)
}
