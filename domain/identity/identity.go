// Package identity describes a node's long-term Curve25519 keypair.
package identity

// Blob is the parsed form of a node's identity file. PeerID and
// ProofOfWork round-trip through the recorder unused by the core pipeline;
// only PublicKey and SecretKey feed the handshake.
type Blob struct {
	PeerID      string
	PublicKey   [32]byte
	SecretKey   [32]byte
	ProofOfWork string
}
