package tezosbox

import (
	"testing"

	"tzrecorder/domain/connection"
)

func TestZero_ClearsAllKeyMaterial(t *testing.T) {
	var h connection.Handshake
	for i := range h.PrecomputedKey {
		h.PrecomputedKey[i] = 0xFF
	}
	for i := range h.LocalNonce0 {
		h.LocalNonce0[i] = 0xAA
	}
	for i := range h.RemoteNonce0 {
		h.RemoteNonce0[i] = 0xBB
	}

	Zero(&h)

	var zero32 [32]byte
	var zero24 [24]byte
	if h.PrecomputedKey != zero32 {
		t.Error("PrecomputedKey not zeroed")
	}
	if h.LocalNonce0 != zero24 {
		t.Error("LocalNonce0 not zeroed")
	}
	if h.RemoteNonce0 != zero24 {
		t.Error("RemoteNonce0 not zeroed")
	}
}

func TestKeyPairGenerator_GeneratesDistinctKeys(t *testing.T) {
	g := NewKeyPairGenerator()

	pub1, priv1, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	pub2, priv2, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if pub1 == pub2 {
		t.Error("expected distinct public keys across calls")
	}
	if priv1 == priv2 {
		t.Error("expected distinct private keys across calls")
	}
	var zero [32]byte
	if pub1 == zero || priv1 == zero {
		t.Error("keys should not be all-zero")
	}
}
