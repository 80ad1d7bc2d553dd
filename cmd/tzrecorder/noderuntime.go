package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tzrecorder/application/counters"
	"tzrecorder/application/demux"
	"tzrecorder/application/obslog"
	"tzrecorder/application/reassembly"
	"tzrecorder/domain/capture"
	"tzrecorder/domain/message"
	"tzrecorder/domain/node"
	"tzrecorder/infrastructure/httpapi"
	"tzrecorder/infrastructure/identity"
	zerologadapter "tzrecorder/infrastructure/obslog"
	"tzrecorder/infrastructure/store/sqlite"
	"tzrecorder/infrastructure/syslogingest"
	"tzrecorder/infrastructure/telemetry/trafficstats"
)

// reapInterval is how often idle connections are swept (spec §3
// "destroyed ... after an idle eviction"); the timeout itself is
// per-node and configurable via node.Config.IdleTimeout.
const reapInterval = 30 * time.Second

// statsLogInterval is how often a node's throughput snapshot is logged.
const statsLogInterval = 30 * time.Second

// eventQueueDepth and storeQueueDepth mirror spec §5's channel capacities
// for the per-node worker and store-writer tasks.
const (
	eventQueueDepth = 4096
	storeQueueDepth = 1024
)

// errStoreQueueFull is returned by storeSink.Emit when the per-node store
// writer can't keep up; the caller counts and drops rather than blocking
// the worker that owns the connection's ordering (spec §7 "Transient I/O").
var errStoreQueueFull = errors.New("store writer queue full")

// storeSink adapts application/store.Store to reassembly.Sink, decoupling
// message persistence from reassembly via a bounded channel so a slow
// store never stalls per-connection processing.
type storeSink struct {
	queue chan message.Message
}

func newStoreSink(depth int) *storeSink {
	return &storeSink{queue: make(chan message.Message, depth)}
}

func (s *storeSink) Emit(msg message.Message) error {
	select {
	case s.queue <- msg:
		return nil
	default:
		return errStoreQueueFull
	}
}

// nodeRuntime bundles everything one [[nodes]] entry needs to run: its
// store, reassembly pipeline, HTTP surface, and syslog ingest.
type nodeRuntime struct {
	cfg      node.Config
	log      obslog.Logger
	counters *counters.Counters
	store    *sqlite.Store
	demux    *demux.Demux
	sink     *storeSink
	events   chan capture.Event
	traffic  *trafficstats.Collector

	httpSrv *http.Server
}

func newNodeRuntime(cfg node.Config) (*nodeRuntime, error) {
	log := zerologadapter.Default(cfg.Name)

	blob, err := identity.Load(cfg.Identity.Path)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	st, err := sqlite.Open(cfg.DB, cfg.MaxDBBytes, log)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	cnt := counters.New(cfg.Name)
	sink := newStoreSink(storeQueueDepth)
	processor := reassembly.NewProcessor(cfg.Name, blob.SecretKey)
	dmx := demux.New(cfg.Name, processor, sink, log, cnt, nil)

	traffic := trafficstats.NewCollector(time.Second, 0.3)
	dmx.SetRateTracker(traffic)

	nr := &nodeRuntime{
		cfg:      cfg,
		log:      log,
		counters: cnt,
		store:    st,
		demux:    dmx,
		sink:     sink,
		events:   make(chan capture.Event, eventQueueDepth),
		traffic:  traffic,
	}

	handler := httpapi.NewHandler(cfg.Name, st, log)
	nr.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort()),
		Handler: handler,
	}

	return nr, nil
}

// runWorker is task class 2 (spec §5): the per-node worker. It drains
// events in FIFO order, which is what gives per-connection ordering since
// every event for one pid arrives on this channel in socket order.
func (nr *nodeRuntime) runWorker(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-nr.events:
			if !ok {
				return nil
			}
			if err := nr.demux.Handle(ev); err != nil {
				if errors.Is(err, errStoreQueueFull) {
					nr.counters.IncStoreDrop()
					nr.log.Warn().Msg("store writer backpressure, message dropped")
					continue
				}
				nr.log.Error().Err(err).Msg("event handling failed")
			}
		case <-ctx.Done():
			return nr.drainAndReap(ctx)
		}
	}
}

// drainAndReap runs once on shutdown: it handles whatever is already
// buffered in the event channel (without closing it), then reaps every
// remaining connection so its final state is flushed to the store before
// the process exits.
func (nr *nodeRuntime) drainAndReap(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-nr.events:
			if !ok {
				return nil
			}
			_ = nr.demux.Handle(ev)
		default:
			if _, err := nr.demux.Reap(0); err != nil {
				nr.log.Error().Err(err).Msg("reap on shutdown failed")
			}
			return nil
		}
	}
}

// runStoreWriter is task class 3: drains sink.Emit's queue into the
// store, one message at a time (spec §4.4's own write serialization
// already handles the batching boundary).
func (nr *nodeRuntime) runStoreWriter(ctx context.Context) error {
	for {
		select {
		case msg, ok := <-nr.sink.queue:
			if !ok {
				return nil
			}
			if _, err := nr.store.InsertMessage(msg); err != nil {
				nr.counters.IncStoreDrop()
				nr.log.Error().Err(err).Msg("message store write failed, dropped")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// runHTTP is task class 4 (the query surface half): serves spec §6's v3
// HTTP API until ctx is cancelled, then shuts down gracefully.
func (nr *nodeRuntime) runHTTP(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := nr.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = nr.httpSrv.Shutdown(shutdownCtx)
		return <-errCh
	}
}

// runSyslog is task class 4 (the ingest half): reads RFC 5424 datagrams
// off this node's log.port until ctx is cancelled.
func (nr *nodeRuntime) runSyslog(ctx context.Context) error {
	udp := syslogingest.NewUDPListener(nr.cfg.Log.Port)
	conn, err := udp.Listen()
	if err != nil {
		return fmt.Errorf("syslog: %w", err)
	}

	ing := syslogingest.New(nr.cfg.Name, conn, nr.store, nr.log, nr.counters)
	errCh := make(chan error, 1)
	go func() { errCh <- ing.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		_ = conn.Close()
		return <-errCh
	}
}

// runReaper is the idle-eviction half of connection lifecycle management
// (spec §3 "Lifecycles"): the agent reports Close directly, but a peer that
// vanishes without a FIN would otherwise stay tracked forever.
func (nr *nodeRuntime) runReaper(ctx context.Context) error {
	timeout := time.Duration(nr.cfg.IdleTimeout()) * time.Second
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			reaped, err := nr.demux.Reap(timeout)
			if err != nil {
				nr.log.Error().Err(err).Msg("idle reap failed")
				continue
			}
			if len(reaped) > 0 {
				nr.log.Info().Int("count", len(reaped)).Msg("reaped idle connections")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// runTrafficStats samples this node's connection throughput and logs a
// periodic snapshot, the observability half of demux's RateTracker wiring.
func (nr *nodeRuntime) runTrafficStats(ctx context.Context) error {
	go nr.traffic.Start(ctx)

	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := nr.traffic.Snapshot()
			nr.log.Info().
				Str("rx_rate", trafficstats.FormatRate(snap.RXRate)).
				Str("tx_rate", trafficstats.FormatRate(snap.TXRate)).
				Msg("connection throughput")
		case <-ctx.Done():
			return nil
		}
	}
}

// deliver routes one capture event into this node's worker channel,
// blocking (and thereby backpressuring the agent reader) when the channel
// is full rather than dropping non-Data events (spec §5 "Backpressure").
func (nr *nodeRuntime) deliver(ctx context.Context, ev capture.Event) {
	select {
	case nr.events <- ev:
	case <-ctx.Done():
	}
}
