package sqlite

import (
	"path/filepath"
	"testing"

	"tzrecorder/application/store"
	"tzrecorder/domain/logrecord"
	"tzrecorder/domain/message"
	"tzrecorder/infrastructure/obslog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "node-store")
	s, err := Open(dir, 0, obslog.Default("test"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMessage(kind message.Kind, ts int64) message.Message {
	return message.Message{
		ConnectionID: 1,
		NodeName:     "mainnet-1",
		PeerAddr:     "203.0.113.5:9732",
		Incoming:     true,
		Source:       message.SourceRemote,
		Timestamp:    ts,
		ChunkIDFrom:  3,
		ChunkIDTo:    3,
		Kind:         kind,
		Preview:      kind.String(),
		Plaintext:    []byte{0x13},
	}
}

func TestStore_InsertAndGetMessage(t *testing.T) {
	s := openTestStore(t)

	id, err := s.InsertMessage(sampleMessage(message.KindGetCurrentHead, 100))
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	if id != 1 {
		t.Fatalf("id = %d, want 1", id)
	}

	got, ok, err := s.GetMessage(id)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !ok {
		t.Fatal("expected message to be found")
	}
	if got.Kind != message.KindGetCurrentHead {
		t.Errorf("kind = %v", got.Kind)
	}
	if got.PeerAddr != "203.0.113.5:9732" {
		t.Errorf("peer addr = %q", got.PeerAddr)
	}
}

func TestStore_GetMessage_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetMessage(999)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if ok {
		t.Fatal("expected not found")
	}
}

func TestStore_QueryMessages_NewestFirstAndCursor(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := s.InsertMessage(sampleMessage(message.KindCurrentHead, int64(i))); err != nil {
			t.Fatalf("InsertMessage %d: %v", i, err)
		}
	}

	all, err := s.QueryMessages(store.MessageFilter{Limit: 10})
	if err != nil {
		t.Fatalf("QueryMessages: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len = %d, want 5", len(all))
	}
	for i, m := range all {
		want := uint64(5 - i)
		if m.ID != want {
			t.Errorf("all[%d].ID = %d, want %d", i, m.ID, want)
		}
	}

	page, err := s.QueryMessages(store.MessageFilter{Cursor: 3, Limit: 2})
	if err != nil {
		t.Fatalf("QueryMessages with cursor: %v", err)
	}
	if len(page) != 2 || page[0].ID != 3 || page[1].ID != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestStore_QueryMessages_KindFilter(t *testing.T) {
	s := openTestStore(t)

	kinds := []message.Kind{message.KindCurrentHead, message.KindBlockHeader, message.KindOperation}
	for _, k := range kinds {
		if _, err := s.InsertMessage(sampleMessage(k, 0)); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}

	filtered, err := s.QueryMessages(store.MessageFilter{
		Limit: 10,
		Kinds: []message.Kind{message.KindCurrentHead, message.KindOperation},
	})
	if err != nil {
		t.Fatalf("QueryMessages: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("len = %d, want 2", len(filtered))
	}
	for _, m := range filtered {
		if m.Kind == message.KindBlockHeader {
			t.Errorf("block_header should have been excluded by the kind filter")
		}
	}
}

func TestStore_InsertAndQueryLogs_FullText(t *testing.T) {
	s := openTestStore(t)

	records := []logrecord.Record{
		{NodeName: "mainnet-1", Level: logrecord.LevelInfo, Timestamp: 1, Section: "net", Message: "new peer connected"},
		{NodeName: "mainnet-1", Level: logrecord.LevelWarn, Timestamp: 2, Section: "net", Message: "peer disconnected unexpectedly"},
		{NodeName: "mainnet-1", Level: logrecord.LevelInfo, Timestamp: 3, Section: "chain", Message: "validated new block"},
	}
	for _, r := range records {
		if _, err := s.InsertLog(r); err != nil {
			t.Fatalf("InsertLog: %v", err)
		}
	}

	results, err := s.QueryLogs(store.LogFilter{Limit: 10, Query: "peer"})
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Message == "validated new block" {
			t.Error("full-text query for 'peer' should not match the block message")
		}
	}
}

func TestStore_QueryLogs_LevelFilter(t *testing.T) {
	s := openTestStore(t)

	for _, lvl := range []logrecord.Level{logrecord.LevelInfo, logrecord.LevelError, logrecord.LevelInfo} {
		if _, err := s.InsertLog(logrecord.Record{NodeName: "n", Level: lvl, Message: "x"}); err != nil {
			t.Fatalf("InsertLog: %v", err)
		}
	}

	lvl := logrecord.LevelError
	results, err := s.QueryLogs(store.LogFilter{Limit: 10, Level: &lvl})
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len = %d, want 1", len(results))
	}
}
