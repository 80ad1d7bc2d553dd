// Package identity loads the JSON identity blob (spec §6 "Identity blob
// format") into domain/identity.Blob.
package identity

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"tzrecorder/domain/identity"
)

// wireBlob mirrors the on-disk JSON shape exactly; peerID and
// proofOfWork round-trip unused by the core (spec §3 "Identity blob").
type wireBlob struct {
	PeerID       string `json:"peer_id"`
	PublicKey    string `json:"public_key"`
	SecretKey    string `json:"secret_key"`
	ProofOfStake string `json:"proof_of_stake"`
}

// Load reads and decodes the identity blob at path.
func Load(path string) (identity.Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return identity.Blob{}, fmt.Errorf("identity: read %s: %w", path, err)
	}

	var w wireBlob
	if err := json.Unmarshal(data, &w); err != nil {
		return identity.Blob{}, fmt.Errorf("identity: parse %s: %w", path, err)
	}

	pub, err := decodeKey(w.PublicKey)
	if err != nil {
		return identity.Blob{}, fmt.Errorf("identity: %s: public_key: %w", path, err)
	}
	sec, err := decodeKey(w.SecretKey)
	if err != nil {
		return identity.Blob{}, fmt.Errorf("identity: %s: secret_key: %w", path, err)
	}

	return identity.Blob{
		PeerID:      w.PeerID,
		PublicKey:   pub,
		SecretKey:   sec,
		ProofOfWork: w.ProofOfStake,
	}, nil
}

func decodeKey(hexStr string) (out [32]byte, err error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes (64 hex chars), got %d bytes", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
