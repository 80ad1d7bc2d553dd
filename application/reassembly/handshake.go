package reassembly

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/nacl/box"

	"tzrecorder/domain/connection"
)

// connectionMessageMinLen is port(2) + public_key(32) + proof_of_work(24) +
// nonce_seed(24); a trailing, variable-length protocol-version list is
// tolerated but not interpreted (spec §3 "not used by the core").
const connectionMessageMinLen = 2 + 32 + 24 + 24

// ErrConnectionMessageTooShort is returned by ParseConnectionMessage when
// the chunk is shorter than the fixed-size prefix it must contain.
var ErrConnectionMessageTooShort = errors.New("reassembly: connection message shorter than fixed prefix")

// ParseConnectionMessage decodes the fixed-size prefix of an unencrypted
// connection message chunk (spec §4.3.2): the 32-byte ephemeral public key
// and 24-byte nonce seed. The proof-of-work stamp and any trailing version
// list are intentionally not parsed; they round-trip unused by the core.
func ParseConnectionMessage(chunk []byte) (pub [32]byte, nonce0 [24]byte, err error) {
	if len(chunk) < connectionMessageMinLen {
		return pub, nonce0, ErrConnectionMessageTooShort
	}
	// chunk[0:2] is the port, ignored by the core.
	copy(pub[:], chunk[2:34])
	// chunk[34:58] is the proof-of-work stamp, ignored by the core.
	copy(nonce0[:], chunk[58:82])
	return pub, nonce0, nil
}

// OnLocalConnectionMessage processes the first outbound chunk of a
// connection: the local node's own connection message.
func OnLocalConnectionMessage(h *connection.Handshake, chunk []byte) error {
	pub, nonce0, err := ParseConnectionMessage(chunk)
	if err != nil {
		h.Fail(connection.FailMalformedHello)
		return err
	}
	h.MarkLocalSeen(pub, nonce0)
	return nil
}

// OnRemoteConnectionMessage processes the first inbound chunk of a
// connection: the remote peer's connection message.
func OnRemoteConnectionMessage(h *connection.Handshake, chunk []byte) error {
	pub, nonce0, err := ParseConnectionMessage(chunk)
	if err != nil {
		h.Fail(connection.FailMalformedHello)
		return err
	}
	h.MarkRemoteSeen(pub, nonce0)
	return nil
}

// CompleteHandshake computes the precomputed key once both connection
// messages have been observed (spec §4.3.2): X25519(localSecret,
// remotePublic) via NaCl's crypto_box_beforenm, exposed by
// golang.org/x/crypto/nacl/box as Precompute.
func CompleteHandshake(h *connection.Handshake, localSecret [32]byte) {
	if !h.BothSeen() {
		return
	}
	var shared [32]byte
	box.Precompute(&shared, &h.RemotePublic, &localSecret)
	h.PrecomputedKey = shared
}

// NonceForChunk computes the per-chunk nonce: the direction's seed plus the
// chunk index, added as a 192-bit big-endian integer (spec §4.3.3).
func NonceForChunk(seed [24]byte, index uint64) [24]byte {
	var out [24]byte
	out = seed
	addUint64BigEndian(&out, index)
	return out
}

// addUint64BigEndian adds n to the big-endian 192-bit integer in nonce,
// propagating carry leftward. Wraparound (spec §9 "nonce wraparound") is
// unreachable in practice and left unhandled: it silently wraps, matching
// the source's unspecified behavior.
func addUint64BigEndian(nonce *[24]byte, n uint64) {
	var add [24]byte
	binary.BigEndian.PutUint64(add[16:], n)

	var carry uint16
	for i := 23; i >= 0; i-- {
		sum := uint16(nonce[i]) + uint16(add[i]) + carry
		nonce[i] = byte(sum)
		carry = sum >> 8
	}
}
