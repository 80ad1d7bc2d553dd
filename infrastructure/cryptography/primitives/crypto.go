package primitives

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/curve25519"
)

// KeyDeriver generates X25519 key pairs, reached through
// tezosbox.KeyPairGenerator for building handshake test vectors. The
// recorder's own handshake never derives a session key of its own
// (nacl/box precomputes directly from the two X25519 public keys), so this
// is generation only, not derivation.
type KeyDeriver interface {
	GenerateX25519KeyPair() (publicKey []byte, privateKey [32]byte, err error)
}

// DefaultKeyDeriver implements KeyDeriver using standard crypto primitives.
type DefaultKeyDeriver struct{}

func (d *DefaultKeyDeriver) GenerateX25519KeyPair() ([]byte, [32]byte, error) {
	var private [32]byte
	if _, err := io.ReadFull(rand.Reader, private[:]); err != nil {
		return nil, private, err
	}
	public, err := curve25519.X25519(private[:], curve25519.Basepoint)
	return public, private, err
}
