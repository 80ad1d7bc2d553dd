package reassembly

import (
	"bytes"
	"testing"
)

func TestFramer_SingleCompleteMessage(t *testing.T) {
	var f Framer
	bodies := f.Feed(EncodeMessage([]byte("hello")))
	if len(bodies) != 1 {
		t.Fatalf("expected 1 body, got %d", len(bodies))
	}
	if !bytes.Equal(bodies[0], []byte("hello")) {
		t.Fatalf("body = %q", bodies[0])
	}
}

func TestFramer_SplitAcrossFeeds(t *testing.T) {
	var f Framer
	full := EncodeMessage([]byte("fragmented message"))

	if bodies := f.Feed(full[:3]); len(bodies) != 0 {
		t.Fatalf("expected no bodies yet, got %d", len(bodies))
	}
	if bodies := f.Feed(full[3:10]); len(bodies) != 0 {
		t.Fatalf("expected no bodies yet, got %d", len(bodies))
	}
	bodies := f.Feed(full[10:])
	if len(bodies) != 1 {
		t.Fatalf("expected 1 body once complete, got %d", len(bodies))
	}
	if !bytes.Equal(bodies[0], []byte("fragmented message")) {
		t.Fatalf("body = %q", bodies[0])
	}
}

func TestFramer_MultipleMessagesInOneFeed(t *testing.T) {
	var f Framer
	var buf []byte
	buf = append(buf, EncodeMessage([]byte("one"))...)
	buf = append(buf, EncodeMessage([]byte("two"))...)

	bodies := f.Feed(buf)
	if len(bodies) != 2 {
		t.Fatalf("expected 2 bodies, got %d", len(bodies))
	}
	if !bytes.Equal(bodies[0], []byte("one")) || !bytes.Equal(bodies[1], []byte("two")) {
		t.Fatalf("bodies = %q", bodies)
	}
}

func TestFramer_EmptyMessageBody(t *testing.T) {
	var f Framer
	bodies := f.Feed(EncodeMessage(nil))
	if len(bodies) != 1 {
		t.Fatalf("expected 1 body, got %d", len(bodies))
	}
	if len(bodies[0]) != 0 {
		t.Fatalf("expected empty body, got %q", bodies[0])
	}
}
