// Package reassembly reconstructs the Tezos P2P wire protocol from raw
// per-direction TCP byte streams: chunk extraction, the two-message
// handshake, AEAD decryption, message framing, and tag dispatch (spec
// §4.3).
package reassembly

import (
	"time"

	"tzrecorder/domain/connection"
	"tzrecorder/domain/message"
	"tzrecorder/infrastructure/cryptography/tezosbox"
)

// Sink receives decoded (or failed-to-decode) messages as the processor
// produces them. cmd/tzrecorder's storeSink satisfies this, so reassembly
// never imports application/store.
type Sink interface {
	Emit(msg message.Message) error
}

// Processor turns the bytes observed on one connection's two directions
// into message.Message records, mutating the Connection's handshake and
// counters as it goes.
type Processor struct {
	nodeName    string
	localSecret [32]byte

	// framers holds the per-connection, per-direction message framer. It
	// lives here rather than on domain.Connection so that domain stays
	// free of reassembly's algorithmic state (layering: domain must not
	// depend on application).
	framers map[uint64]*directionFramers
}

type directionFramers struct {
	in  Framer
	out Framer

	// inMsgCount/outMsgCount count framed application messages emitted so
	// far in each direction (spec §3 "Message kinds... covering the
	// connection handshake, metadata/ack, and the operational set"): the
	// first two framed messages after the connection message carry no
	// PeerMessage tag byte at all (metadata, then ack), so both decode as
	// KindMetadata; only the third and later ones are tag-dispatched.
	inMsgCount  int
	outMsgCount int
}

// untaggedFramedMessages is how many framed messages at the start of each
// direction precede the first tagged PeerMessage (spec §3).
const untaggedFramedMessages = 2

func (d *directionFramers) nextMsgIndex(dir connection.Direction) int {
	if dir == connection.DirIn {
		idx := d.inMsgCount
		d.inMsgCount++
		return idx
	}
	idx := d.outMsgCount
	d.outMsgCount++
	return idx
}

// NewProcessor builds a Processor for one node. localSecret is that node's
// own X25519 secret key, needed to complete each connection's handshake.
func NewProcessor(nodeName string, localSecret [32]byte) *Processor {
	return &Processor{
		nodeName:    nodeName,
		localSecret: localSecret,
		framers:     make(map[uint64]*directionFramers),
	}
}

func (p *Processor) framersFor(connID uint64) *directionFramers {
	f, ok := p.framers[connID]
	if !ok {
		f = &directionFramers{}
		p.framers[connID] = f
	}
	return f
}

// Forget releases a connection's framer state. Call this once a
// Connection is closed and fully drained, so long-lived demultiplexers
// don't retain framer buffers for dead connections.
func (p *Processor) Forget(connID uint64) {
	delete(p.framers, connID)
}

// source reports which side of the wire a direction's bytes originated
// from: outbound bytes are this node's own traffic, inbound bytes are the
// peer's.
func source(dir connection.Direction) message.Source {
	if dir == connection.DirOut {
		return message.SourceLocal
	}
	return message.SourceRemote
}

func nonceSeed(h *connection.Handshake, dir connection.Direction) [24]byte {
	if dir == connection.DirOut {
		return h.LocalNonce0
	}
	return h.RemoteNonce0
}

func (p *Processor) blank(conn *connection.Connection, dir connection.Direction, chunkID uint64, now time.Time) message.Message {
	return message.Message{
		ConnectionID: conn.ID,
		NodeName:     p.nodeName,
		PeerAddr:     conn.PeerAddr.String(),
		Incoming:     conn.Incoming,
		Source:       source(dir),
		Timestamp:    now.UnixNano(),
		ChunkIDFrom:  chunkID,
		ChunkIDTo:    chunkID,
	}
}

// Feed appends newly observed raw bytes for one direction of conn,
// advances as many complete chunks as are now available, and emits a
// message.Message to sink for each connection message, desync, decrypt
// failure, or fully-framed application message produced along the way.
//
// Per-chunk attribution on multi-chunk application messages is an
// approximation: ChunkIDFrom/ChunkIDTo are both set to the chunk that
// completed the message, not the chunk that started its accumulation, and
// Ciphertext holds only that completing chunk's bytes.
func (p *Processor) Feed(conn *connection.Connection, dir connection.Direction, raw []byte, now time.Time, sink Sink) error {
	conn.SetBuf(dir, append(conn.Buf(dir), raw...))
	chunks, rest := ExtractChunks(conn.Buf(dir))
	conn.SetBuf(dir, rest)

	for _, chunk := range chunks {
		if err := p.feedChunk(conn, dir, chunk, now, sink); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) feedChunk(conn *connection.Connection, dir connection.Direction, chunk []byte, now time.Time, sink Sink) error {
	chunkID := conn.Counters.Next(dir)

	if chunkID == 0 {
		return p.feedConnectionMessage(conn, dir, chunk, now, sink)
	}

	if conn.Handshake.Status() != connection.Established {
		conn.Handshake.Fail(connection.FailDesync)
		msg := p.blank(conn, dir, chunkID, now)
		msg.Kind = message.KindMalformed
		msg.Ciphertext = chunk
		msg.DecodeErr = string(conn.Handshake.FailReason())
		return sink.Emit(msg)
	}

	nonceIdx := conn.Nonce.Next(dir)
	nonce := NonceForChunk(nonceSeed(&conn.Handshake, dir), nonceIdx)
	plaintext, ok := Decrypt(conn.Handshake.PrecomputedKey, nonce, chunk)
	if !ok {
		msg := p.blank(conn, dir, chunkID, now)
		msg.Kind = message.KindDecryptFailed
		msg.Ciphertext = chunk
		msg.DecodeErr = "secretbox: authentication failed"
		return sink.Emit(msg)
	}

	framers := p.framersFor(conn.ID)
	var framer *Framer
	if dir == connection.DirIn {
		framer = &framers.in
	} else {
		framer = &framers.out
	}
	bodies := framer.Feed(plaintext)
	for _, body := range bodies {
		result := decodeFramedBody(framers.nextMsgIndex(dir), body)
		msg := p.blank(conn, dir, chunkID, now)
		msg.Kind = result.Kind
		msg.Preview = result.Preview
		msg.Ciphertext = chunk
		msg.Plaintext = body
		msg.DecodeErr = result.Err
		if err := sink.Emit(msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) feedConnectionMessage(conn *connection.Connection, dir connection.Direction, chunk []byte, now time.Time, sink Sink) error {
	var err error
	if dir == connection.DirOut {
		err = OnLocalConnectionMessage(&conn.Handshake, chunk)
	} else {
		err = OnRemoteConnectionMessage(&conn.Handshake, chunk)
	}

	kind := message.KindConnectionMessage
	decodeErr := ""
	if err != nil {
		kind = message.KindMalformed
		decodeErr = err.Error()
	} else {
		CompleteHandshake(&conn.Handshake, p.localSecret)
	}

	msg := p.blank(conn, dir, 0, now)
	msg.Kind = kind
	msg.Plaintext = chunk
	msg.DecodeErr = decodeErr
	return sink.Emit(msg)
}

// Close flushes any residual, never-completed partial chunk bytes buffered
// for conn as a single truncated record per direction with nonempty
// leftovers, then releases the connection's framer state; decrypted
// plaintext still held by a framer is dropped, not flushed (spec
// §3 "Lifecycles": "on close, emit a final record for any undecoded
// remainder").
func (p *Processor) Close(conn *connection.Connection, now time.Time, sink Sink) error {
	defer p.Forget(conn.ID)
	defer tezosbox.Zero(&conn.Handshake)

	for _, dir := range []connection.Direction{connection.DirIn, connection.DirOut} {
		leftover := conn.Buf(dir)
		if len(leftover) == 0 {
			continue
		}
		conn.Handshake.Fail(connection.FailTruncated)
		msg := p.blank(conn, dir, conn.Counters.Peek(dir), now)
		msg.Kind = message.KindMalformed
		msg.Ciphertext = leftover
		msg.DecodeErr = string(connection.FailTruncated)
		if err := sink.Emit(msg); err != nil {
			return err
		}
		conn.SetBuf(dir, nil)
	}
	return nil
}
