package syslogingest

import (
	"errors"
	"net"
	"time"

	"tzrecorder/application/obslog"
	"tzrecorder/application/store"
	"tzrecorder/domain/logrecord"
)

// maxDatagram is generous for RFC 5424 over UDP: most implementations cap
// well under the classic 65507-byte UDP payload ceiling, but we read up to
// the ceiling so a long MSG is never silently truncated.
const maxDatagram = 65507

// Writer is the subset of store.Store the ingest loop needs.
type Writer interface {
	InsertLog(rec logrecord.Record) (uint64, error)
}

// Ingest reads syslog datagrams off one UDP socket and writes them to a
// node's store, counting malformed datagrams and write failures rather
// than tearing down the listener (spec §7 "Transient I/O": retry/drop +
// counter; malformed records never take down a capture path, and the same
// posture applies here).
type Ingest struct {
	nodeName string
	listener Listener
	writer   Writer
	log      obslog.Logger
	counters Counters
	now      func() time.Time
}

// Counters exposes the drop counters this ingest path increments.
type Counters interface {
	IncStoreDrop()
}

func New(nodeName string, listener Listener, writer Writer, log obslog.Logger, counters Counters) *Ingest {
	return &Ingest{
		nodeName: nodeName,
		listener: listener,
		writer:   writer,
		log:      log,
		counters: counters,
		now:      time.Now,
	}
}

// Run reads datagrams until the listener is closed (typically by the
// caller in response to context cancellation), logging and counting
// failures along the way. It returns nil on a clean close.
func (ing *Ingest) Run() error {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := ing.listener.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		ing.handle(buf[:n])
	}
}

func (ing *Ingest) handle(datagram []byte) {
	rec, err := Parse(datagram, ing.nodeName, ing.now())
	if err != nil {
		ing.log.Warn().Str("node", ing.nodeName).Err(err).Msg("malformed syslog datagram, dropped")
		return
	}
	if _, err := ing.writer.InsertLog(rec); err != nil {
		ing.counters.IncStoreDrop()
		ing.log.Error().Str("node", ing.nodeName).Err(err).Msg("log record store write failed, dropped")
	}
}
