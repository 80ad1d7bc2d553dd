// Package store defines the durable-storage port (spec §4.4): append-only
// P2P message and log record persistence, secondary indexes, retention,
// and cursor-paginated queries. A concrete implementation lives in
// infrastructure/store/sqlite.
package store

import (
	"tzrecorder/domain/logrecord"
	"tzrecorder/domain/message"
)

// DefaultLimit and MaxLimit bound the `limit` query parameter (spec §4.4
// "Cursor semantics").
const (
	DefaultLimit = 100
	MaxLimit     = 10000
)

// MessageFilter narrows a P2P query (spec §6 `GET /v2/p2p`).
type MessageFilter struct {
	Cursor     uint64 // 0 means "start at the highest existing id"
	Limit      int
	RemoteAddr string
	Source     message.Source // "" means any
	Incoming   *bool          // nil means any
	Kinds      []message.Kind // empty means any
	From, To   int64          // unix nanos, 0 means unbounded
}

// LogFilter narrows a log query (spec §6 `GET /v2/log`).
type LogFilter struct {
	Cursor   uint64
	Limit    int
	Level    *logrecord.Level
	From, To int64
	Query    string // full-text query over Message
}

// Store is the per-node durable store port.
type Store interface {
	// InsertMessage appends a P2P message record, assigning it the next
	// monotonic id for this node, and returns that id.
	InsertMessage(msg message.Message) (uint64, error)

	// InsertLog appends a log record, assigning it the next monotonic id.
	InsertLog(rec logrecord.Record) (uint64, error)

	// QueryMessages returns P2P records matching filter, newest-first.
	QueryMessages(filter MessageFilter) ([]message.Message, error)

	// GetMessage returns the full record for id, including ciphertext and
	// plaintext (spec §6 `GET /v2/p2p/{id}`).
	GetMessage(id uint64) (message.Message, bool, error)

	// QueryLogs returns log records matching filter, newest-first.
	QueryLogs(filter LogFilter) ([]logrecord.Record, error)

	// Close releases the underlying engine handle.
	Close() error
}

// Counters exposes the drop counters a store failure path increments
// (spec §4.4 "Failure", §7).
type Counters interface {
	StoreDrops() uint64
}
