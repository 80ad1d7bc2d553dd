package agent

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"tzrecorder/domain/capture"
)

// maxPayload is the agent's own per-event capture cap on one ring buffer
// sample, independent of the Tezos protocol's own 64 KiB chunk ceiling
// (spec §3 "Chunk"); decodeSample rejects a sample whose DataLen exceeds
// it.
const maxPayload = 16384

// maxAddr bounds the textual "ip:port" address the probe copies out of
// the kernel sockaddr for Bind/Connect/Accept events.
const maxAddr = 64

// rawSample is the fixed-layout record the kernel-side probe writes into
// the ring buffer, mirroring the fixed-struct-plus-length-field shape used
// for variable-size payloads in other_examples' ocx-backend cmd/probe
// ring buffer Event (PID/FD/Comm/Size/Payload, decoded with
// binary.Read(bytes.NewReader(...), binary.LittleEndian, ...)).
type rawSample struct {
	Kind    uint8
	Dir     uint8
	_       [2]byte
	PID     int32
	FD      int32
	AddrLen uint16
	_       [2]byte
	Addr    [maxAddr]byte
	DataLen uint32
	Data    [maxPayload]byte
}

// decodeSample parses one raw ring buffer record into a capture.Event.
// seq is assigned by the caller (the single ring-buffer-reading goroutine
// sees records in order, so a local monotonic counter suffices — the
// kernel side does not need to agree on a shared sequence space).
func decodeSample(raw []byte, seq uint64) (capture.Event, error) {
	var s rawSample
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &s); err != nil {
		return capture.Event{}, fmt.Errorf("agent: decode ring buffer sample: %w", err)
	}
	if int(s.AddrLen) > maxAddr {
		return capture.Event{}, fmt.Errorf("agent: addr length %d exceeds cap %d", s.AddrLen, maxAddr)
	}
	if int(s.DataLen) > maxPayload {
		return capture.Event{}, fmt.Errorf("agent: data length %d exceeds cap %d", s.DataLen, maxPayload)
	}

	ev := capture.Event{
		Seq:  seq,
		Kind: capture.Kind(s.Kind),
		PID:  s.PID,
		FD:   s.FD,
	}
	switch ev.Kind {
	case capture.KindBind, capture.KindConnect, capture.KindAccept:
		ev.Addr = string(s.Addr[:s.AddrLen])
	case capture.KindData:
		ev.Dir = capture.Direction(s.Dir)
		ev.Bytes = append([]byte(nil), s.Data[:s.DataLen]...)
	}
	return ev, nil
}
