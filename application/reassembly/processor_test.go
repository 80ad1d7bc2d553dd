package reassembly

import (
	"net/netip"
	"testing"
	"time"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"tzrecorder/domain/connection"
	"tzrecorder/domain/message"
)

type recordingSink struct {
	msgs []message.Message
}

func (s *recordingSink) Emit(msg message.Message) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

// peerHandshake drives a Connection and a simulated peer through the
// two-message handshake, returning the peer's precomputed key so test
// bodies can be encrypted as the peer would encrypt them.
func peerHandshake(t *testing.T, p *Processor, conn *connection.Connection, sink Sink, now time.Time) (peerKey [32]byte, peerOutSeed [24]byte) {
	t.Helper()

	var localPub [32]byte
	curve25519.ScalarBaseMult(&localPub, &p.localSecret)
	peerPub, peerSec, err := box.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey peer: %v", err)
	}

	var localNonce0, peerNonce0 [24]byte
	localNonce0[0] = 0x10
	peerNonce0[0] = 0x20

	localMsg := buildConnectionMessage(localPub, localNonce0)
	if err := p.Feed(conn, connection.DirOut, EncodeChunk(localMsg), now, sink); err != nil {
		t.Fatalf("Feed local connection message: %v", err)
	}

	peerMsg := buildConnectionMessage(*peerPub, peerNonce0)
	if err := p.Feed(conn, connection.DirIn, EncodeChunk(peerMsg), now, sink); err != nil {
		t.Fatalf("Feed peer connection message: %v", err)
	}

	if conn.Handshake.Status() != connection.Established {
		t.Fatalf("status = %v, want Established", conn.Handshake.Status())
	}

	var shared [32]byte
	box.Precompute(&shared, &localPub, peerSec)
	return shared, peerNonce0
}

func newTestConnection() *connection.Connection {
	addr := netip.MustParseAddrPort("203.0.113.5:9732")
	return connection.New(1, addr, false, time.Unix(0, 0))
}

func TestProcessor_HandshakeEmitsConnectionMessages(t *testing.T) {
	p := NewProcessor("node-a", [32]byte{})
	conn := newTestConnection()
	sink := &recordingSink{}
	now := time.Unix(1700000000, 0)

	peerHandshake(t, p, conn, sink, now)

	if len(sink.msgs) != 2 {
		t.Fatalf("expected 2 connection-message records, got %d", len(sink.msgs))
	}
	for i, m := range sink.msgs {
		if m.Kind != message.KindConnectionMessage {
			t.Errorf("msg %d kind = %v, want KindConnectionMessage", i, m.Kind)
		}
	}
	if sink.msgs[0].Source != message.SourceLocal {
		t.Errorf("msg 0 source = %v, want local", sink.msgs[0].Source)
	}
	if sink.msgs[1].Source != message.SourceRemote {
		t.Errorf("msg 1 source = %v, want remote", sink.msgs[1].Source)
	}
}

// feedEncryptedFrame encrypts and delivers one framed message body as the
// peer's traffic for dir, advancing nonceIdx the way a real peer's AEAD
// chunk index would.
func feedEncryptedFrame(t *testing.T, p *Processor, conn *connection.Connection, dir connection.Direction, peerKey [32]byte, seed [24]byte, nonceIdx uint64, body []byte, now time.Time, sink Sink) {
	t.Helper()
	nonce := NonceForChunk(seed, nonceIdx)
	ciphertext := Encrypt(peerKey, nonce, EncodeMessage(body))
	if err := p.Feed(conn, dir, EncodeChunk(ciphertext), now, sink); err != nil {
		t.Fatalf("Feed: %v", err)
	}
}

func TestProcessor_FirstTwoFramedMessagesAreMetadata(t *testing.T) {
	p := NewProcessor("node-a", [32]byte{})
	conn := newTestConnection()
	sink := &recordingSink{}
	now := time.Unix(1700000000, 0)

	peerKey, peerOutSeed := peerHandshake(t, p, conn, sink, now)
	sink.msgs = nil

	// Metadata (disable_mempool, private_node) then ack: both untagged,
	// both spec §3's single KindMetadata (the two are never distinguished).
	feedEncryptedFrame(t, p, conn, connection.DirIn, peerKey, peerOutSeed, 0, []byte{0x00, 0x00}, now, sink)
	feedEncryptedFrame(t, p, conn, connection.DirIn, peerKey, peerOutSeed, 1, []byte{0x00}, now, sink)

	if len(sink.msgs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(sink.msgs))
	}
	for i, m := range sink.msgs {
		if m.Kind != message.KindMetadata {
			t.Errorf("msg %d kind = %v, want KindMetadata", i, m.Kind)
		}
	}
}

func TestProcessor_DecryptsAndDecodesApplicationMessage(t *testing.T) {
	p := NewProcessor("node-a", [32]byte{})
	conn := newTestConnection()
	sink := &recordingSink{}
	now := time.Unix(1700000000, 0)

	peerKey, peerOutSeed := peerHandshake(t, p, conn, sink, now)

	// The first two framed messages in this direction are always metadata
	// and ack; a tagged application message only dispatches from the
	// third one on.
	feedEncryptedFrame(t, p, conn, connection.DirIn, peerKey, peerOutSeed, 0, []byte{0x00, 0x00}, now, sink)
	feedEncryptedFrame(t, p, conn, connection.DirIn, peerKey, peerOutSeed, 1, []byte{0x00}, now, sink)
	sink.msgs = nil

	body := []byte{0x13} // get_current_head, no payload
	feedEncryptedFrame(t, p, conn, connection.DirIn, peerKey, peerOutSeed, 2, body, now, sink)

	if len(sink.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sink.msgs))
	}
	if sink.msgs[0].Kind != message.KindGetCurrentHead {
		t.Fatalf("kind = %v, want KindGetCurrentHead", sink.msgs[0].Kind)
	}
}

func TestProcessor_DecryptFailureEmitsRecordAndAdvancesCounter(t *testing.T) {
	p := NewProcessor("node-a", [32]byte{})
	conn := newTestConnection()
	sink := &recordingSink{}
	now := time.Unix(1700000000, 0)

	peerHandshake(t, p, conn, sink, now)
	sink.msgs = nil

	garbage := make([]byte, 40)
	if err := p.Feed(conn, connection.DirIn, EncodeChunk(garbage), now, sink); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if len(sink.msgs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.msgs))
	}
	if sink.msgs[0].Kind != message.KindDecryptFailed {
		t.Fatalf("kind = %v, want KindDecryptFailed", sink.msgs[0].Kind)
	}
	if conn.Nonce.Peek(connection.DirIn) != 1 {
		t.Fatalf("nonce counter = %d, want 1 (should still advance on failure)", conn.Nonce.Peek(connection.DirIn))
	}
}

func TestProcessor_EncryptedChunkBeforeHandshakeIsDesync(t *testing.T) {
	p := NewProcessor("node-a", [32]byte{})
	conn := newTestConnection()
	sink := &recordingSink{}
	now := time.Unix(1700000000, 0)

	// First chunk ever in this direction is always treated as the
	// connection message; send garbage as the *second* inbound chunk
	// before the handshake completes to trigger desync.
	if err := p.Feed(conn, connection.DirIn, EncodeChunk(buildConnectionMessage([32]byte{1}, [24]byte{2})), now, sink); err != nil {
		t.Fatalf("Feed connection message: %v", err)
	}
	sink.msgs = nil

	if err := p.Feed(conn, connection.DirIn, EncodeChunk([]byte("premature")), now, sink); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if len(sink.msgs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.msgs))
	}
	if sink.msgs[0].Kind != message.KindMalformed {
		t.Fatalf("kind = %v, want KindMalformed", sink.msgs[0].Kind)
	}
	if conn.Handshake.Status() != connection.Failed {
		t.Fatalf("status = %v, want Failed", conn.Handshake.Status())
	}
	if conn.Handshake.FailReason() != connection.FailDesync {
		t.Fatalf("reason = %v, want FailDesync", conn.Handshake.FailReason())
	}
}

func TestProcessor_CloseFlushesResidualBytes(t *testing.T) {
	p := NewProcessor("node-a", [32]byte{})
	conn := newTestConnection()
	sink := &recordingSink{}
	now := time.Unix(1700000000, 0)

	peerHandshake(t, p, conn, sink, now)
	sink.msgs = nil

	// A length prefix claiming more bytes than are actually present: a
	// partial chunk that will never complete.
	partial := []byte{0x00, 0xFF, 0x01, 0x02}
	if err := p.Feed(conn, connection.DirOut, partial, now, sink); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(sink.msgs) != 0 {
		t.Fatalf("partial chunk should not emit before Close, got %d records", len(sink.msgs))
	}

	if err := p.Close(conn, now, sink); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sink.msgs) != 1 {
		t.Fatalf("expected 1 flushed record, got %d", len(sink.msgs))
	}
	if sink.msgs[0].DecodeErr != string(connection.FailTruncated) {
		t.Fatalf("decode err = %q, want %q", sink.msgs[0].DecodeErr, connection.FailTruncated)
	}
	if len(conn.Buf(connection.DirOut)) != 0 {
		t.Fatal("Close should drain the residual buffer")
	}
}

func TestProcessor_ForgetReleasesFramerState(t *testing.T) {
	p := NewProcessor("node-a", [32]byte{})
	conn := newTestConnection()
	sink := &recordingSink{}
	now := time.Unix(1700000000, 0)

	peerHandshake(t, p, conn, sink, now)
	if _, ok := p.framers[conn.ID]; !ok {
		t.Fatal("expected framer state to exist after handshake")
	}
	p.Forget(conn.ID)
	if _, ok := p.framers[conn.ID]; ok {
		t.Fatal("expected framer state to be released after Forget")
	}
}
