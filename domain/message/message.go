// Package message defines the closed set of decoded Tezos P2P message
// kinds and the record persisted for each one (spec §3 "Message").
package message

// Kind is the closed set of Tezos P2P message kinds the decoder produces,
// plus the three sentinel kinds for data the decoder could not classify.
type Kind uint8

const (
	KindConnectionMessage Kind = iota
	KindMetadata
	KindDisconnect
	KindBootstrap
	KindAdvertise
	KindSwapRequest
	KindSwapAck
	KindGetCurrentBranch
	KindCurrentBranch
	KindDeactivate
	KindGetCurrentHead
	KindCurrentHead
	KindGetBlockHeaders
	KindBlockHeader
	KindGetOperations
	KindOperation
	KindGetProtocols
	KindProtocol
	KindGetOperationHashesForBlocks
	KindOperationHashesForBlock
	KindGetOperationsForBlocks
	KindOperationsForBlocks

	KindUnknown
	KindMalformed
	KindDecryptFailed
)

var kindNames = map[Kind]string{
	KindConnectionMessage:           "connection_message",
	KindMetadata:                    "metadata",
	KindDisconnect:                  "disconnect",
	KindBootstrap:                   "bootstrap",
	KindAdvertise:                   "advertise",
	KindSwapRequest:                 "swap_request",
	KindSwapAck:                     "swap_ack",
	KindGetCurrentBranch:            "get_current_branch",
	KindCurrentBranch:               "current_branch",
	KindDeactivate:                  "deactivate",
	KindGetCurrentHead:              "get_current_head",
	KindCurrentHead:                 "current_head",
	KindGetBlockHeaders:             "get_block_headers",
	KindBlockHeader:                 "block_header",
	KindGetOperations:               "get_operations",
	KindOperation:                   "operation",
	KindGetProtocols:                "get_protocols",
	KindProtocol:                    "protocol",
	KindGetOperationHashesForBlocks: "get_operation_hashes_for_blocks",
	KindOperationHashesForBlock:     "operation_hashes_for_block",
	KindGetOperationsForBlocks:      "get_operations_for_blocks",
	KindOperationsForBlocks:         "operations_for_blocks",
	KindUnknown:                     "unknown",
	KindMalformed:                   "malformed",
	KindDecryptFailed:               "decrypt_failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a wire name back to a Kind, for HTTP query filters
// (`types=current_head,operation`). The zero bool is false for unrecognized
// names.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Source names which side of a connection a message originated from, used
// by the `by_source` index and the HTTP `source_type` filter.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Message is one decoded (or failed-to-decode) logical Tezos command,
// spanning one or more consecutive plaintext chunks in one direction of
// one connection (spec §3 "Message", §4.3.6 "Emission").
type Message struct {
	ID           uint64
	ConnectionID uint64
	NodeName     string
	PeerAddr     string
	Incoming     bool
	Source       Source
	Timestamp    int64 // unix nanos, taken when the event that completed this record was processed, not from the syscall itself

	ChunkIDFrom uint64
	ChunkIDTo   uint64

	Kind    Kind
	Preview string

	// Ciphertext is the original on-wire bytes of the chunk this record
	// came from; for an application message spanning several chunks it is
	// only the chunk that completed it (the one ChunkIDTo names). Empty for
	// the two connection messages, which are never encrypted.
	Ciphertext []byte
	Plaintext  []byte
	DecodeErr  string
}
