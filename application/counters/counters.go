// Package counters tracks the recorder's internal drop and error
// accounting (spec §7 "Error handling": "never blocks; drops and counts")
// as named, process-wide VictoriaMetrics/metrics counters, mirroring the
// teacher's infrastructure/telemetry/trafficstats package but wired into
// the pack's metrics library instead of a bespoke atomic snapshot type.
package counters

import "github.com/VictoriaMetrics/metrics"

// Counters is the process-wide set of drop/error counters for one node.
// Each counter is registered under a stable name in the process-wide
// VictoriaMetrics registry; no HTTP route exposes them.
type Counters struct {
	captureGap        *metrics.Counter
	unknownConnection *metrics.Counter
	storeDrops        *metrics.Counter
	agentDropped      *metrics.Counter
}

// New registers a fresh set of per-node counters under name-scoped metric
// names, e.g. "tzrecorder_capture_gap_total{node=\"mainnet-1\"}".
func New(node string) *Counters {
	tag := `{node="` + node + `"}`
	return &Counters{
		captureGap:        metrics.NewCounter("tzrecorder_capture_gap_total" + tag),
		unknownConnection: metrics.NewCounter("tzrecorder_unknown_connection_total" + tag),
		storeDrops:        metrics.NewCounter("tzrecorder_store_drops_total" + tag),
		agentDropped:      metrics.NewCounter("tzrecorder_agent_dropped_total" + tag),
	}
}

// IncCaptureGap records a detected gap in the agent's event sequence
// numbers for one connection (application/demux.Counters).
func (c *Counters) IncCaptureGap() { c.captureGap.Inc() }

// IncUnknownConnection records a Data event for a (pid, fd) the
// demultiplexer never saw opened (application/demux.Counters).
func (c *Counters) IncUnknownConnection() { c.unknownConnection.Inc() }

// IncStoreDrop records a message or log record dropped because the store
// could not keep up (infrastructure/syslogingest.Counters).
func (c *Counters) IncStoreDrop() { c.storeDrops.Inc() }

// StoreDrops returns the current store-drop total (application/store.Counters).
func (c *Counters) StoreDrops() uint64 { return c.storeDrops.Get() }

// IncAgentDropped records one Data event the capture agent dropped under
// control-socket backpressure (spec §4.1 "Transport"; infrastructure/capture/agent.Counters).
func (c *Counters) IncAgentDropped() { c.agentDropped.Inc() }

// DroppedCount returns the current agent-side drop total
// (application/captureagent.Dropped).
func (c *Counters) DroppedCount() uint64 { return c.agentDropped.Get() }
