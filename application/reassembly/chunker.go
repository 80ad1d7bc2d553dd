// Package reassembly implements the algorithmic heart of the recorder
// (spec §4.3): chunk extraction, the two-message handshake, AEAD
// decryption, message framing, and message decoding.
package reassembly

import "encoding/binary"

// ExtractChunks greedily pulls complete 2-byte length-prefixed chunks out
// of buf (spec §4.3.1). It returns the extracted chunk payloads in order
// and the unconsumed remainder of buf. L == 0 is legal and yields an empty
// chunk.
//
// The returned chunk slices alias buf; callers that need to retain a chunk
// past the next mutation of buf must copy it.
func ExtractChunks(buf []byte) (chunks [][]byte, rest []byte) {
	for len(buf) >= 2 {
		l := int(binary.BigEndian.Uint16(buf[:2]))
		if len(buf) < 2+l {
			break
		}
		chunks = append(chunks, buf[2:2+l])
		buf = buf[2+l:]
	}
	return chunks, buf
}

// EncodeChunk prepends a 2-byte big-endian length prefix to payload,
// the inverse of ExtractChunks — used by tests to build wire fixtures and
// by the round-trip property in spec §8.
func EncodeChunk(payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(out[:2], uint16(len(payload)))
	copy(out[2:], payload)
	return out
}
