// Package captureagent defines the port between the kernel capture agent
// (spec §4.1, component A) and the user-side event demultiplexer
// (component B). A concrete transport (an existing agent's Unix socket, or
// an in-process eBPF-backed agent spawned with --run-bpf) lives under
// infrastructure/capture.
package captureagent

import "tzrecorder/domain/capture"

// Source is anything that can be read as a sequential stream of capture
// events. Implementations must preserve the sequence-number ordering
// within a single (pid, fd): spec §5 "per connection, per direction:
// strict FIFO on byte arrival" depends on it.
type Source interface {
	// Next blocks until the next event is available or the source is
	// closed.
	Next() (capture.Event, error)
	Close() error
}

// Dropped reports the agent-side Data-event drop counter (spec §4.1
// "Transport": "the agent drops Data events and increments a dropped
// counter").
type Dropped interface {
	DroppedCount() uint64
}
