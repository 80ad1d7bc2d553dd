package agent

import (
	"context"
	"errors"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"tzrecorder/application/obslog"
	"tzrecorder/domain/capture"
	"tzrecorder/domain/node"
	"tzrecorder/infrastructure/capture/wire"
)

// RingReader is the narrow seam over *github.com/cilium/ebpf/ringbuf.Reader
// the agent depends on, so the dispatch/backpressure logic below can run
// against a fake in tests without a kernel.
type RingReader interface {
	Read() ([]byte, error)
	Close() error
}

// ErrClosed is returned by a RingReader once it has been closed; Agent.Run
// treats it as a clean shutdown rather than a failure.
var ErrClosed = errors.New("agent: ring buffer reader closed")

// Counters exposes the agent-side drop counter (spec §4.1 "Transport":
// Data events are dropped under backpressure and counted; every other
// event kind is never dropped).
type Counters interface {
	IncAgentDropped()
}

// queueDepth bounds how many events may be buffered for the control-socket
// writer before Data events start getting dropped (spec §4.1 "the
// user-side consumer backpressures by not reading").
const queueDepth = 1024

// Agent discovers tracked node processes and forwards their syscall events
// over a Unix control socket, framed by infrastructure/capture/wire.
type Agent struct {
	discovery *Discovery
	log       obslog.Logger
	counters  Counters
	queue     chan capture.Event
}

func New(nodes []node.Config, log obslog.Logger, counters Counters) *Agent {
	return &Agent{
		discovery: NewDiscovery(nodes),
		log:       log,
		counters:  counters,
		queue:     make(chan capture.Event, queueDepth),
	}
}

// Run reads ring buffer samples from reader, updates process discovery,
// and forwards tracked events to conn until ctx is cancelled or reader
// returns ErrClosed. The send side (writer goroutine) and the read side
// (this loop) run concurrently so a slow control-socket write never stalls
// ring buffer draining.
func (a *Agent) Run(ctx context.Context, reader RingReader, conn io.Writer) error {
	writeErr := make(chan error, 1)
	go func() { writeErr <- a.drain(ctx, conn) }()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			reader.Close()
			<-writeErr
			return ctx.Err()
		default:
		}

		raw, err := reader.Read()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				close(a.queue)
				return <-writeErr
			}
			a.log.Error().Err(err).Msg("ring buffer read failed")
			continue
		}

		ev, err := decodeSample(raw, seq)
		if err != nil {
			a.log.Warn().Err(err).Msg("malformed ring buffer sample, skipped")
			continue
		}
		seq++
		a.dispatch(ctx, ev)
	}
}

// dispatch applies process discovery and the non-goroutine half of the
// Data-event backpressure rule: a Bind is first offered to discovery (it's
// how discovery learns a pid), then every event, Bind included, is dropped
// unless its pid is tracked. A tracked pid stays tracked across socket
// closes.
func (a *Agent) dispatch(ctx context.Context, ev capture.Event) {
	if ev.Kind == capture.KindBind {
		if port, ok := parsePort(ev.Addr); ok {
			a.discovery.OnBind(ev.PID, port)
		}
	}
	if !a.discovery.IsTracked(ev.PID) {
		return
	}

	if ev.Kind == capture.KindData {
		select {
		case a.queue <- ev:
		default:
			a.counters.IncAgentDropped()
			a.log.Warn().Int("pid", int(ev.PID)).Int("fd", int(ev.FD)).Msg("control socket backpressure, dropped data event")
		}
		return
	}

	// Non-Data events are never dropped: block until the writer catches up,
	// or until shutdown is requested.
	select {
	case a.queue <- ev:
	case <-ctx.Done():
	}
}

func (a *Agent) drain(ctx context.Context, conn io.Writer) error {
	for {
		select {
		case ev, ok := <-a.queue:
			if !ok {
				return nil
			}
			if err := wire.WriteFrame(conn, ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parsePort(addr string) (uint16, bool) {
	idx := strings.LastIndexByte(addr, ':')
	if idx < 0 {
		if ap, err := netip.ParseAddrPort(addr); err == nil {
			return ap.Port(), true
		}
		return 0, false
	}
	p, err := strconv.ParseUint(addr[idx+1:], 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(p), true
}
