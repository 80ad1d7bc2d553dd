package reassembly

import "encoding/binary"

// Framer accumulates plaintext bytes from successive chunks and emits
// complete Tezos messages: a u32_be length prefix (excluding itself)
// followed by that many body bytes (spec §4.3.4).
type Framer struct {
	buf []byte
}

// Feed appends newly decrypted (or, for the two connection messages, raw)
// plaintext and returns every message body that is now fully buffered.
// Partial data is retained internally for the next call.
func (f *Framer) Feed(plaintext []byte) [][]byte {
	f.buf = append(f.buf, plaintext...)

	var bodies [][]byte
	for len(f.buf) >= 4 {
		l := binary.BigEndian.Uint32(f.buf[:4])
		if uint64(len(f.buf)) < 4+uint64(l) {
			break
		}
		body := make([]byte, l)
		copy(body, f.buf[4:4+l])
		bodies = append(bodies, body)
		f.buf = f.buf[4+l:]
	}
	// Once everything is consumed, release the backing array; a partial
	// tail keeps sharing it until a later append reallocates.
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return bodies
}

// EncodeMessage prepends a u32_be length prefix to body, the inverse of
// Framer.Feed's framing — used to build test fixtures.
func EncodeMessage(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}
