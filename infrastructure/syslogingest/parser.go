// Package syslogingest implements the per-node RFC 5424 syslog-over-UDP
// ingest path (spec §6 "Syslog input", §4.5): PRI/TIMESTAMP/APP-NAME/MSG
// map onto a logrecord.Record; MSGID is skipped and not stored. No RFC 5424
// parser appears anywhere in
// the example pack, so this is a small hand-rolled parser over the
// stdlib-only "bytes"/"strconv" packages (DESIGN.md: stdlib justification
// for syslogingest/parser.go).
package syslogingest

import (
	"bytes"
	"errors"
	"strconv"
	"time"

	"tzrecorder/domain/logrecord"
)

var errMalformed = errors.New("syslogingest: malformed RFC 5424 message")

// nilValue is the RFC 5424 placeholder for an absent field.
const nilValue = "-"

// Parse decodes one RFC 5424 syslog datagram into a log record. nodeName
// is supplied by the caller (the node this UDP port belongs to), since
// RFC 5424's HOSTNAME field names the emitting machine, not the recorder's
// node identity.
func Parse(data []byte, nodeName string, now time.Time) (logrecord.Record, error) {
	pri, rest, err := splitPRI(data)
	if err != nil {
		return logrecord.Record{}, err
	}

	fields := bytes.SplitN(rest, []byte(" "), 7)
	if len(fields) < 6 {
		return logrecord.Record{}, errMalformed
	}
	// fields: VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID [STRUCTURED-DATA MSG...]

	ts := parseTimestamp(string(fields[1]), now)
	appName := string(fields[3])

	msg := ""
	if len(fields) == 7 {
		msg = stripStructuredData(fields[6])
	}

	return logrecord.Record{
		NodeName:  nodeName,
		Level:     logrecord.FromSyslogSeverity(pri % 8),
		Timestamp: ts,
		Section:   appName,
		Message:   msg,
	}, nil
}

// splitPRI reads the "<NNN>" prefix and returns the numeric PRI value plus
// the remainder of the message, starting at VERSION.
func splitPRI(data []byte) (int, []byte, error) {
	if len(data) < 3 || data[0] != '<' {
		return 0, nil, errMalformed
	}
	end := bytes.IndexByte(data, '>')
	if end < 1 || end > 4 {
		return 0, nil, errMalformed
	}
	pri, err := strconv.Atoi(string(data[1:end]))
	if err != nil {
		return 0, nil, errMalformed
	}
	return pri, data[end+1:], nil
}

// parseTimestamp accepts RFC 3339 with optional fractional seconds, the
// shape RFC 5424 TIMESTAMP mandates. A nil value or an unparseable
// timestamp falls back to now, rather than dropping the whole record.
func parseTimestamp(s string, now time.Time) int64 {
	if s == nilValue || s == "" {
		return now.UnixNano()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UnixNano()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixNano()
	}
	return now.UnixNano()
}

// stripStructuredData drops a leading STRUCTURED-DATA element (either "-"
// or one or more "[...]" groups) and an optional UTF-8 BOM, returning just
// MSG.
func stripStructuredData(field []byte) string {
	field = bytes.TrimPrefix(field, []byte(nilValue))
	for len(field) > 0 && field[0] == '[' {
		end := bytes.IndexByte(field, ']')
		if end < 0 {
			break
		}
		field = field[end+1:]
	}
	field = bytes.TrimPrefix(field, []byte{' '})
	field = bytes.TrimPrefix(field, []byte{0xEF, 0xBB, 0xBF})
	return string(field)
}
