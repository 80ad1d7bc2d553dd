package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_ValidBlob(t *testing.T) {
	pub := strings.Repeat("ab", 32)
	sec := strings.Repeat("cd", 32)
	doc := `{
		"peer_id": "idtest1234",
		"public_key": "` + pub + `",
		"secret_key": "` + sec + `",
		"proof_of_stake": "deadbeef"
	}`

	blob, err := Load(writeTemp(t, doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if blob.PeerID != "idtest1234" {
		t.Errorf("PeerID = %q", blob.PeerID)
	}
	if blob.PublicKey[0] != 0xab {
		t.Errorf("PublicKey[0] = %x, want 0xab", blob.PublicKey[0])
	}
	if blob.SecretKey[0] != 0xcd {
		t.Errorf("SecretKey[0] = %x, want 0xcd", blob.SecretKey[0])
	}
	if blob.ProofOfWork != "deadbeef" {
		t.Errorf("ProofOfWork = %q", blob.ProofOfWork)
	}
}

func TestLoad_WrongKeyLength(t *testing.T) {
	doc := `{"public_key": "abcd", "secret_key": "` + strings.Repeat("cd", 32) + `"}`
	if _, err := Load(writeTemp(t, doc)); err == nil {
		t.Fatal("expected error for a too-short public key")
	}
}

func TestLoad_InvalidHex(t *testing.T) {
	doc := `{"public_key": "zz", "secret_key": "` + strings.Repeat("cd", 32) + `"}`
	if _, err := Load(writeTemp(t, doc)); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
