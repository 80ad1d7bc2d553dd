package reassembly

import "golang.org/x/crypto/nacl/secretbox"

// Decrypt opens one AEAD chunk (spec §4.3.3): ciphertext is the chunk
// payload as observed on the wire, which already carries the 16-byte
// Poly1305 tag at its head as produced by NaCl's crypto_secretbox, and
// nonce is the per-direction, per-chunk value from NonceForChunk.
//
// ok is false on MAC failure; the caller must still advance the chunk
// counter and keep capturing ciphertext (spec: "does not advance past the
// chunk" refers to plaintext interpretation, not the raw stream).
func Decrypt(key [32]byte, nonce [24]byte, ciphertext []byte) (plaintext []byte, ok bool) {
	return secretbox.Open(nil, ciphertext, &nonce, &key)
}

// Encrypt seals plaintext the same way the peer would have, for the
// round-trip property in spec §8 ("encrypt(nonce, key, plaintext) ==
// ciphertext") and for test fixtures.
func Encrypt(key [32]byte, nonce [24]byte, plaintext []byte) []byte {
	return secretbox.Seal(nil, plaintext, &nonce, &key)
}
