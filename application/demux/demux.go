// Package demux turns the flat capture.Event stream into per-connection
// state and dispatches each connection's byte stream into the reassembly
// pipeline (spec §4.2, component B).
package demux

import (
	"fmt"
	"net/netip"
	"time"

	"tzrecorder/application/obslog"
	"tzrecorder/application/reassembly"
	"tzrecorder/domain/capture"
	"tzrecorder/domain/connection"
)

// key identifies a tracked socket. PIDs and file descriptors are reused by
// the kernel once closed, so a key is only meaningful between the Connect
// or Accept event that opens it and the Close event that ends it.
type key struct {
	pid int32
	fd  int32
}

// Demux owns the (pid, fd) -> Connection table for one node and feeds
// every Data event into a reassembly.Processor, in the order events
// arrive for that connection (spec §5: "per connection, per direction:
// strict FIFO on byte arrival").
type Demux struct {
	nodeName  string
	processor *reassembly.Processor
	sink      reassembly.Sink
	log       obslog.Logger
	counters  Counters
	now       func() time.Time

	conns    map[key]*connection.Connection
	lastSeq  map[key]uint64
	haveSeq  map[key]bool
	nextID   uint64

	tracker RateTracker
}

// Counters receives demultiplexer-level drop accounting. The concrete
// implementation lives in application/counters.
type Counters interface {
	IncCaptureGap()
	IncUnknownConnection()
}

// RateTracker receives per-direction byte counts off every Data event, for
// throughput observability (infrastructure/telemetry/trafficstats.Collector).
// It has no bearing on reassembly and is never required: a nil tracker
// (the default) disables rate tracking entirely.
type RateTracker interface {
	AddRX(bytes int)
	AddTX(bytes int)
}

// SetRateTracker attaches a RateTracker. Passing nil disables tracking.
func (d *Demux) SetRateTracker(t RateTracker) {
	d.tracker = t
}

// New builds a Demux for one node. now defaults to time.Now when nil,
// overridable in tests.
func New(nodeName string, processor *reassembly.Processor, sink reassembly.Sink, log obslog.Logger, counters Counters, now func() time.Time) *Demux {
	if now == nil {
		now = time.Now
	}
	return &Demux{
		nodeName:  nodeName,
		processor: processor,
		sink:      sink,
		log:       log,
		counters:  counters,
		now:       now,
		conns:     make(map[key]*connection.Connection),
		lastSeq:   make(map[key]uint64),
		haveSeq:   make(map[key]bool),
	}
}

// Handle processes one capture.Event, mutating connection state and
// emitting reassembled messages as a side effect via the Demux's sink.
func (d *Demux) Handle(ev capture.Event) error {
	k := key{pid: ev.PID, fd: ev.FD}

	switch ev.Kind {
	case capture.KindBind, capture.KindListen:
		// Listening-socket lifecycle events carry no peer and start no
		// tracked connection; logged for operator visibility only.
		d.log.Debug().Int("pid", int(ev.PID)).Int("fd", int(ev.FD)).Msg("bind/listen observed")
		return nil

	case capture.KindConnect:
		d.open(k, ev, false)
		return nil

	case capture.KindAccept:
		d.open(k, ev, true)
		return nil

	case capture.KindData:
		return d.data(k, ev)

	case capture.KindClose:
		return d.close(k)
	}

	return fmt.Errorf("demux: unknown event kind %d", ev.Kind)
}

func (d *Demux) open(k key, ev capture.Event, incoming bool) {
	addr, err := netip.ParseAddrPort(ev.Addr)
	if err != nil {
		d.log.Warn().Str("addr", ev.Addr).Err(err).Msg("unparseable peer address, tracking with zero value")
	}

	d.nextID++
	d.conns[k] = connection.New(d.nextID, addr, incoming, d.now())
	d.lastSeq[k] = ev.Seq
	d.haveSeq[k] = true
}

func (d *Demux) data(k key, ev capture.Event) error {
	conn, ok := d.conns[k]
	if !ok {
		// A Data event for a socket we never saw opened: the agent was
		// started after the connection, or a Bind/Connect/Accept event
		// was dropped upstream. Nothing to attribute this to.
		d.counters.IncUnknownConnection()
		return nil
	}

	if d.haveSeq[k] && ev.Seq != d.lastSeq[k]+1 {
		// A gap in the agent's own sequence numbering means some bytes
		// between the last observed event and this one never reached us:
		// the chunk and message boundaries from here on are no longer
		// trustworthy for this connection.
		d.counters.IncCaptureGap()
		conn.Handshake.Fail(connection.FailTruncated)
	}
	d.lastSeq[k] = ev.Seq
	d.haveSeq[k] = true

	conn.Touch(d.now())
	dir := toDomainDirection(ev.Dir)
	if d.tracker != nil {
		if dir == connection.DirIn {
			d.tracker.AddRX(len(ev.Bytes))
		} else {
			d.tracker.AddTX(len(ev.Bytes))
		}
	}
	return d.processor.Feed(conn, dir, ev.Bytes, d.now(), d.sink)
}

func (d *Demux) close(k key) error {
	conn, ok := d.conns[k]
	if !ok {
		return nil
	}
	conn.Close(d.now())
	err := d.processor.Close(conn, d.now(), d.sink)
	delete(d.conns, k)
	delete(d.lastSeq, k)
	delete(d.haveSeq, k)
	return err
}

// Connections returns the number of currently tracked connections, for
// diagnostics.
func (d *Demux) Connections() int {
	return len(d.conns)
}

// Reap closes every connection idle for at least timeout, the user-side
// half of connection lifecycle management: the agent reports Close
// directly, but a peer that vanishes without a FIN still needs to be
// evicted (spec §3 "Lifecycles").
func (d *Demux) Reap(timeout time.Duration) ([]uint64, error) {
	now := d.now()
	var reaped []uint64
	for k, conn := range d.conns {
		if conn.IdleSince(now) < timeout {
			continue
		}
		conn.Close(now)
		if err := d.processor.Close(conn, now, d.sink); err != nil {
			return reaped, err
		}
		delete(d.conns, k)
		delete(d.lastSeq, k)
		delete(d.haveSeq, k)
		reaped = append(reaped, conn.ID)
	}
	return reaped, nil
}

func toDomainDirection(dir capture.Direction) connection.Direction {
	if dir == capture.DirectionIn {
		return connection.DirIn
	}
	return connection.DirOut
}
