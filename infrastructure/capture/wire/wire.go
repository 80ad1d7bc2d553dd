// Package wire implements the capture-agent control-socket framing (spec
// §6 "Capture-agent socket"): length-prefixed binary frames over a Unix
// stream socket, carrying the §4.1 event enum with integers little-endian.
// Grounded on the teacher's infrastructure/network/framing/tcp_encoder.go
// length-prefix style, generalized from a flat byte buffer to a typed
// multi-field record.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"tzrecorder/domain/capture"
)

// maxFrame bounds a single frame so a corrupt or hostile length prefix
// cannot force an unbounded allocation.
const maxFrame = 1 << 20

var errTruncated = errors.New("wire: truncated frame")

// Encode serializes one event into a length-prefixed frame.
func Encode(ev capture.Event) []byte {
	body := encodeBody(ev)
	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)
	return frame
}

func encodeBody(ev capture.Event) []byte {
	var buf []byte
	buf = appendUint64(buf, ev.Seq)
	buf = append(buf, byte(ev.Kind))
	buf = appendInt32(buf, ev.PID)
	buf = appendInt32(buf, ev.FD)

	switch ev.Kind {
	case capture.KindBind, capture.KindConnect, capture.KindAccept:
		buf = appendString(buf, ev.Addr)
	case capture.KindData:
		buf = append(buf, byte(ev.Dir))
		buf = appendString(buf, string(ev.Bytes))
	}
	return buf
}

// WriteFrame writes one event frame to w.
func WriteFrame(w io.Writer, ev capture.Event) error {
	_, err := w.Write(Encode(ev))
	return err
}

// ReadFrame reads and decodes the next frame from r.
func ReadFrame(r io.Reader) (capture.Event, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return capture.Event{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxFrame {
		return capture.Event{}, fmt.Errorf("wire: frame length %d exceeds max %d", n, maxFrame)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return capture.Event{}, err
	}
	return decodeBody(body)
}

func decodeBody(buf []byte) (capture.Event, error) {
	var ev capture.Event

	seq, buf, err := readUint64(buf)
	if err != nil {
		return ev, err
	}
	ev.Seq = seq

	if len(buf) < 1 {
		return ev, errTruncated
	}
	ev.Kind = capture.Kind(buf[0])
	buf = buf[1:]

	pid, buf, err := readInt32(buf)
	if err != nil {
		return ev, err
	}
	ev.PID = pid

	fd, buf, err := readInt32(buf)
	if err != nil {
		return ev, err
	}
	ev.FD = fd

	switch ev.Kind {
	case capture.KindBind, capture.KindConnect, capture.KindAccept:
		addr, _, err := readString(buf)
		if err != nil {
			return ev, err
		}
		ev.Addr = addr
	case capture.KindData:
		if len(buf) < 1 {
			return ev, errTruncated
		}
		ev.Dir = capture.Direction(buf[0])
		buf = buf[1:]
		data, _, err := readString(buf)
		if err != nil {
			return ev, err
		}
		ev.Bytes = []byte(data)
	}
	return ev, nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendInt32(buf []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) []byte {
	var lenB [4]byte
	binary.LittleEndian.PutUint32(lenB[:], uint32(len(s)))
	buf = append(buf, lenB[:]...)
	return append(buf, s...)
}

func readUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errTruncated
	}
	return binary.LittleEndian.Uint64(buf[:8]), buf[8:], nil
}

func readInt32(buf []byte) (int32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, errTruncated
	}
	return int32(binary.LittleEndian.Uint32(buf[:4])), buf[4:], nil
}

func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, errTruncated
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return "", nil, errTruncated
	}
	return string(buf[:n]), buf[n:], nil
}
