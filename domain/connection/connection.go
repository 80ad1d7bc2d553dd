// Package connection holds the per-TCP-socket state the reassembler and
// demultiplexer operate on (spec §3 "Connection").
package connection

import (
	"net/netip"
	"time"
)

// HandshakeStatus names the four states of the per-connection handshake
// FSM described in spec §3's Connection invariant.
//
// Status reports AwaitingRemoteConn once only the local connection message
// has been seen, and AwaitingLocalConn otherwise (before either side has
// been seen, or once only the remote one has).
type HandshakeStatus uint8

const (
	AwaitingLocalConn HandshakeStatus = iota
	AwaitingRemoteConn
	Established
	Failed
)

func (s HandshakeStatus) String() string {
	switch s {
	case AwaitingLocalConn:
		return "awaiting_local_conn"
	case AwaitingRemoteConn:
		return "awaiting_remote_conn"
	case Established:
		return "established"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailReason enumerates why a connection's handshake FSM entered Failed.
type FailReason string

const (
	FailNone            FailReason = ""
	FailTruncated       FailReason = "truncated"
	FailDesync          FailReason = "encrypted_before_handshake"
	FailMalformedHello  FailReason = "malformed_connection_message"
)

// Handshake tracks the per-connection cryptographic handshake bookkeeping.
type Handshake struct {
	localSeen  bool
	remoteSeen bool
	failed     bool
	failReason FailReason

	// PrecomputedKey is crypto_box_beforenm(localSecret, remotePublic),
	// valid only once Status() reports Established.
	PrecomputedKey [32]byte

	// LocalNonce0/RemoteNonce0 are the 24-byte nonce seeds read out of the
	// two connection messages; LocalNonce0 seeds the outbound direction's
	// per-chunk nonce stream, RemoteNonce0 the inbound direction's.
	LocalNonce0  [24]byte
	RemoteNonce0 [24]byte

	// RemotePublic is the only connection-message public key the recorder
	// ever reads back out (CompleteHandshake feeds it to box.Precompute
	// alongside the node's own local secret).
	RemotePublic [32]byte
}

// Status derives the named FSM state from the underlying booleans.
func (h *Handshake) Status() HandshakeStatus {
	switch {
	case h.failed:
		return Failed
	case h.localSeen && h.remoteSeen:
		return Established
	case h.localSeen:
		return AwaitingRemoteConn
	case h.remoteSeen:
		return AwaitingLocalConn
	default:
		return AwaitingLocalConn
	}
}

func (h *Handshake) FailReason() FailReason { return h.failReason }

// MarkLocalSeen records that the outbound connection message has been
// decoded, storing its nonce seed. The local connection message's own
// public key is never read back (it's the node's own identity, already
// known), so only the nonce seed is kept.
func (h *Handshake) MarkLocalSeen(pub [32]byte, nonce0 [24]byte) {
	h.LocalNonce0 = nonce0
	h.localSeen = true
}

// MarkRemoteSeen records that the inbound connection message has been
// decoded, storing its public key and nonce seed.
func (h *Handshake) MarkRemoteSeen(pub [32]byte, nonce0 [24]byte) {
	h.RemotePublic = pub
	h.RemoteNonce0 = nonce0
	h.remoteSeen = true
}

// Fail transitions the FSM to Failed. Idempotent: the first reason wins.
func (h *Handshake) Fail(reason FailReason) {
	if h.failed {
		return
	}
	h.failed = true
	h.failReason = reason
}

// BothSeen reports whether both connection messages have arrived, the
// precondition for computing the precomputed key.
func (h *Handshake) BothSeen() bool {
	return h.localSeen && h.remoteSeen
}

// ChunkCounters tracks a per-direction monotonic uint64: either the
// gap-free chunk id sequence of spec §4.3.1 (starting at 0, including the
// connection message), or the post-handshake AEAD chunk index of §4.3.3
// (starting at 0 for the first chunk after the connection message) — a
// Connection holds one of each.
type ChunkCounters struct {
	In  uint64
	Out uint64
}

func (c *ChunkCounters) Next(dir Direction) uint64 {
	if dir == DirIn {
		v := c.In
		c.In++
		return v
	}
	v := c.Out
	c.Out++
	return v
}

func (c *ChunkCounters) Peek(dir Direction) uint64 {
	if dir == DirIn {
		return c.In
	}
	return c.Out
}

// Direction mirrors capture.Direction without importing the capture
// package, keeping domain/connection free of a dependency on the agent
// wire format.
type Direction uint8

const (
	DirIn Direction = iota
	DirOut
)

// Connection is the full per-socket state the demultiplexer owns and the
// reassembler mutates while processing one event (spec §3, §9 "cyclic
// references").
type Connection struct {
	ID        uint64
	PeerAddr  netip.AddrPort
	Incoming  bool
	OpenedAt  time.Time
	ClosedAt  time.Time // zero value until Close

	Handshake Handshake

	// Counters is the gap-free chunk id sequence (spec Invariant 1): it
	// starts at 0 and includes the connection message as chunk 0.
	Counters ChunkCounters

	// Nonce is the post-handshake AEAD chunk index (spec §4.3.3): it starts
	// at 0 for the first chunk *after* the connection message, independent
	// of Counters.
	Nonce ChunkCounters

	// InBuf/OutBuf are the raw byte queues chunk extraction consumes from.
	InBuf  []byte
	OutBuf []byte

	// lastActivity drives idle eviction (spec §3 "Lifecycles").
	lastActivity time.Time
}

func New(id uint64, peer netip.AddrPort, incoming bool, now time.Time) *Connection {
	return &Connection{
		ID:           id,
		PeerAddr:     peer,
		Incoming:     incoming,
		OpenedAt:     now,
		lastActivity: now,
	}
}

func (c *Connection) Touch(now time.Time) { c.lastActivity = now }

func (c *Connection) IdleSince(now time.Time) time.Duration {
	return now.Sub(c.lastActivity)
}

func (c *Connection) IsClosed() bool { return !c.ClosedAt.IsZero() }

func (c *Connection) Close(now time.Time) {
	if c.IsClosed() {
		return
	}
	c.ClosedAt = now
}

// Buf returns the byte queue for the given direction.
func (c *Connection) Buf(dir Direction) []byte {
	if dir == DirIn {
		return c.InBuf
	}
	return c.OutBuf
}

func (c *Connection) SetBuf(dir Direction, b []byte) {
	if dir == DirIn {
		c.InBuf = b
	} else {
		c.OutBuf = b
	}
}
