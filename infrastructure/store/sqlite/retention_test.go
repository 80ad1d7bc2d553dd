package sqlite

import (
	"path/filepath"
	"testing"

	"tzrecorder/infrastructure/obslog"
)

func TestStore_RetentionEvictsLowestIDsWhenOverCap(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "node-store")
	// maxDBBytes of 1 guarantees any non-empty database is "over cap",
	// forcing eviction to run on the next size-check boundary.
	s, err := Open(dir, 1, obslog.Default("test"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for i := 0; i < insertsBetweenSizeChecks+1; i++ {
		if _, err := s.InsertMessage(sampleMessage(0, int64(i))); err != nil {
			t.Fatalf("InsertMessage %d: %v", i, err)
		}
	}

	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM messages`); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count >= insertsBetweenSizeChecks+1 {
		t.Fatalf("expected retention to have evicted some rows, still have %d", count)
	}

	var minID uint64
	if err := s.db.Get(&minID, `SELECT COALESCE(MIN(id), 0) FROM messages`); err != nil {
		t.Fatalf("min id: %v", err)
	}
	if minID != 0 && minID <= 1 {
		t.Errorf("expected the lowest surviving id to have advanced past eviction, got %d", minID)
	}
}
