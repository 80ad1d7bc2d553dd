// Package logrecord defines the ingested node-log record (spec §3 "Log
// record").
package logrecord

// Level is the RFC 5424-derived severity of a log record.
type Level uint8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelNotice
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"trace", "debug", "info", "notice", "warn", "error", "fatal"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "info"
}

// ParseLevel maps a wire name back to a Level; ok is false for unknown
// names.
func ParseLevel(s string) (Level, bool) {
	for i, name := range levelNames {
		if name == s {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// FromSyslogSeverity maps an RFC 5424 PRI severity (0-7) onto Level, per
// spec §6 "Syslog input".
func FromSyslogSeverity(sev int) Level {
	switch sev {
	case 0, 1, 2: // emerg, alert, crit
		return LevelFatal
	case 3: // err
		return LevelError
	case 4: // warning
		return LevelWarn
	case 5: // notice
		return LevelNotice
	case 6: // info
		return LevelInfo
	case 7: // debug
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Record is one ingested log line, spec §3.
type Record struct {
	ID        uint64
	NodeName  string
	Level     Level
	Timestamp int64 // unix nanos
	Section   string
	Message   string
}
