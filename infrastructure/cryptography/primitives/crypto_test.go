package primitives

import (
	crand "crypto/rand"
	"errors"
	"io"
	"testing"
)

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy read failed")
}

func TestDefaultKeyDeriver_GenerateX25519KeyPair_Success(t *testing.T) {
	d := &DefaultKeyDeriver{}

	pub, priv, err := d.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub) != 32 {
		t.Fatalf("expected public key length 32, got %d", len(pub))
	}
	if len(priv) != 32 {
		t.Fatalf("expected private key length 32, got %d", len(priv))
	}
}

func TestDefaultKeyDeriver_GenerateX25519KeyPair_ReadError(t *testing.T) {
	orig := crand.Reader
	crand.Reader = io.Reader(errReader{})
	t.Cleanup(func() {
		crand.Reader = orig
	})

	d := &DefaultKeyDeriver{}
	_, _, err := d.GenerateX25519KeyPair()
	if err == nil {
		t.Fatal("expected entropy read error")
	}
}
