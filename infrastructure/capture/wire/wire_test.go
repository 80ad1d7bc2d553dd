package wire

import (
	"bytes"
	"testing"

	"tzrecorder/domain/capture"
)

func roundTrip(t *testing.T, ev capture.Event) capture.Event {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteFrame(&buf, ev); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return got
}

func sameScalarFields(a, b capture.Event) bool {
	return a.Seq == b.Seq && a.Kind == b.Kind && a.PID == b.PID && a.FD == b.FD &&
		a.Addr == b.Addr && a.Dir == b.Dir
}

func TestRoundTrip_Bind(t *testing.T) {
	ev := capture.Event{Seq: 1, Kind: capture.KindBind, PID: 42, FD: 7, Addr: "0.0.0.0:9732"}
	got := roundTrip(t, ev)
	if !sameScalarFields(got, ev) {
		t.Errorf("got %+v, want %+v", got, ev)
	}
}

func TestRoundTrip_Connect(t *testing.T) {
	ev := capture.Event{Seq: 2, Kind: capture.KindConnect, PID: 42, FD: 8, Addr: "203.0.113.5:9732"}
	got := roundTrip(t, ev)
	if !sameScalarFields(got, ev) {
		t.Errorf("got %+v, want %+v", got, ev)
	}
}

func TestRoundTrip_Data(t *testing.T) {
	ev := capture.Event{Seq: 3, Kind: capture.KindData, PID: 42, FD: 8, Dir: capture.DirectionIn, Bytes: []byte{0x00, 0x02, 0xAB, 0xCD}}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, ev); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Seq != ev.Seq || got.Kind != ev.Kind || got.PID != ev.PID || got.FD != ev.FD || got.Dir != ev.Dir {
		t.Fatalf("got %+v, want %+v", got, ev)
	}
	if !bytes.Equal(got.Bytes, ev.Bytes) {
		t.Errorf("bytes = %x, want %x", got.Bytes, ev.Bytes)
	}
}

func TestRoundTrip_Close(t *testing.T) {
	ev := capture.Event{Seq: 4, Kind: capture.KindClose, PID: 42, FD: 8}
	got := roundTrip(t, ev)
	if !sameScalarFields(got, ev) {
		t.Errorf("got %+v, want %+v", got, ev)
	}
}

func TestRoundTrip_DataEmptyChunk(t *testing.T) {
	ev := capture.Event{Seq: 5, Kind: capture.KindData, PID: 1, FD: 1, Dir: capture.DirectionOut, Bytes: []byte{}}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, ev); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got.Bytes) != 0 {
		t.Errorf("expected empty bytes, got %x", got.Bytes)
	}
}

func TestReadFrame_TruncatedLengthPrefix(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x01, 0x00}))
	if err == nil {
		t.Fatal("expected error for truncated length prefix")
	}
}

func TestReadFrame_TruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, capture.Event{Kind: capture.KindClose}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := ReadFrame(bytes.NewReader(truncated))
	if err == nil {
		t.Fatal("expected error for truncated body")
	}
}

func TestReadFrame_OversizeLengthRejected(t *testing.T) {
	var lenBuf [4]byte
	lenBuf[3] = 0x01 // 0x01000000, far past maxFrame
	_, err := ReadFrame(bytes.NewReader(lenBuf[:]))
	if err == nil {
		t.Fatal("expected error for oversize frame length")
	}
}
