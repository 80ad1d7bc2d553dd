package reassembly

import (
	"encoding/hex"
	"fmt"

	"tzrecorder/domain/message"
)

// tagKind maps a Tezos P2P message's leading tag byte to a Kind, per the
// shell's p2p_message wire encoding (spec §4.3.5, §3 "Message").
var tagKind = map[byte]message.Kind{
	0x00: message.KindDisconnect,
	0x01: message.KindBootstrap,
	0x02: message.KindAdvertise,
	0x03: message.KindSwapRequest,
	0x04: message.KindSwapAck,
	0x10: message.KindGetCurrentBranch,
	0x11: message.KindCurrentBranch,
	0x12: message.KindDeactivate,
	0x13: message.KindGetCurrentHead,
	0x14: message.KindCurrentHead,
	0x15: message.KindGetBlockHeaders,
	0x16: message.KindBlockHeader,
	0x17: message.KindGetOperations,
	0x18: message.KindOperation,
	0x19: message.KindGetProtocols,
	0x1A: message.KindProtocol,
	0x1B: message.KindGetOperationHashesForBlocks,
	0x1C: message.KindOperationHashesForBlock,
	0x1D: message.KindGetOperationsForBlocks,
	0x1E: message.KindOperationsForBlocks,
}

// DecodeResult is the outcome of decoding one plaintext message body.
type DecodeResult struct {
	Kind    message.Kind
	Preview string
	Err     string
}

// DecodeBody classifies body by its leading tag byte (spec §4.3.5).
// Unknown tags produce KindUnknown; a zero-length body produces
// KindMalformed. The body is read directly, not copied, so large bodies
// (e.g. block headers) are never duplicated in memory just to classify
// them.
func DecodeBody(body []byte) DecodeResult {
	if len(body) == 0 {
		return DecodeResult{Kind: message.KindMalformed, Err: "empty message body"}
	}
	kind, ok := tagKind[body[0]]
	if !ok {
		return DecodeResult{
			Kind:    message.KindUnknown,
			Preview: fmt.Sprintf("unknown tag 0x%02x, %d bytes", body[0], len(body)),
		}
	}
	return DecodeResult{Kind: kind, Preview: preview(kind, body)}
}

// decodeFramedBody classifies one post-handshake framed message body,
// given its 0-based position among framed messages in its direction. The
// first untaggedFramedMessages bodies (metadata, then ack) carry no
// PeerMessage tag byte at all and would otherwise be misread as whatever
// tag their leading byte happens to match (spec §3 "metadata/ack" is one
// Kind, KindMetadata); everything from there on is tag-dispatched as usual.
func decodeFramedBody(msgIndex int, body []byte) DecodeResult {
	if msgIndex < untaggedFramedMessages {
		if len(body) == 0 {
			return DecodeResult{Kind: message.KindMalformed, Err: "empty message body"}
		}
		return DecodeResult{Kind: message.KindMetadata, Preview: untaggedPreview(message.KindMetadata, body)}
	}
	return DecodeBody(body)
}

// untaggedPreview is preview's counterpart for bodies with no leading tag
// byte to skip: the whole body is payload.
func untaggedPreview(kind message.Kind, body []byte) string {
	const maxPreviewBytes = 16
	tail := body
	if len(tail) > maxPreviewBytes {
		tail = tail[:maxPreviewBytes]
	}
	return fmt.Sprintf("%s %s", kind.String(), hex.EncodeToString(tail))
}

// preview renders a short, human-readable summary of a decoded message,
// never more than a few dozen bytes of hex for the tail of the body.
func preview(kind message.Kind, body []byte) string {
	tail := body[1:]
	const maxPreviewBytes = 16
	if len(tail) > maxPreviewBytes {
		tail = tail[:maxPreviewBytes]
	}
	if len(tail) == 0 {
		return kind.String()
	}
	return fmt.Sprintf("%s %s", kind.String(), hex.EncodeToString(tail))
}
