// Package tezosbox wires the kept teacher cryptography helpers
// (infrastructure/cryptography/mem, infrastructure/cryptography/primitives)
// into the recorder's domain: scrubbing handshake key material on
// connection close, and generating X25519 key pairs for constructing
// end-to-end test vectors (spec §8 "canonical test vectors with known
// keys and nonces").
package tezosbox

import (
	"tzrecorder/domain/connection"
	"tzrecorder/infrastructure/cryptography/mem"
	"tzrecorder/infrastructure/cryptography/primitives"
)

// Zero scrubs a connection's handshake key material, the precomputed key
// and both nonce seeds, once the connection closes (spec §5 "Resource
// policy": "precomputed keys are held per connection and zeroed on
// connection close").
func Zero(h *connection.Handshake) {
	mem.ZeroBytes(h.PrecomputedKey[:])
	mem.ZeroBytes(h.LocalNonce0[:])
	mem.ZeroBytes(h.RemoteNonce0[:])
}

// KeyPairGenerator produces X25519 key pairs for building handshake test
// vectors with known keys; the recorder itself never calls it.
type KeyPairGenerator struct {
	deriver primitives.KeyDeriver
}

// NewKeyPairGenerator builds a KeyPairGenerator backed by
// primitives.DefaultKeyDeriver.
func NewKeyPairGenerator() *KeyPairGenerator {
	return &KeyPairGenerator{deriver: &primitives.DefaultKeyDeriver{}}
}

// Generate returns a fresh X25519 public/private key pair.
func (g *KeyPairGenerator) Generate() (public [32]byte, private [32]byte, err error) {
	pub, priv, err := g.deriver.GenerateX25519KeyPair()
	if err != nil {
		return public, private, err
	}
	copy(public[:], pub)
	return public, priv, nil
}
