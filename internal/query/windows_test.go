package query

import (
	"os"
	"path/filepath"
	"testing"

	"engram/internal/index"
	"engram/internal/slogutil"
	"engram/internal/tape"
)

func setupBlobStore(t *testing.T) *tape.BlobStore {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "tapes")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create tape dir: %v", err)
	}
	return tape.NewBlobStore(dir, slogutil.NewDiscardLogger())
}

func writeTape(t *testing.T, blobs *tape.BlobStore, tapeID, content string) {
	t.Helper()
	if _, err := blobs.Write(tapeID, []byte(content)); err != nil {
		t.Fatalf("Failed to write tape %s: %v", tapeID, err)
	}
}

func fragment(tapeID string, offset int64, kind index.EvidenceKind, ts string) index.EvidenceFragment {
	return index.EvidenceFragment{
		Anchor:      "anchor-x",
		TapeID:      tapeID,
		EventOffset: offset,
		Kind:        kind,
		FilePath:    "src/auth.go",
		Timestamp:   ts,
	}
}

func TestCollectTouchesDedupesAcrossAnchors(t *testing.T) {
	db, teardown := setupTestDB(t)
	defer teardown()

	store := index.NewStore(db)
	// The same event row indexed under two anchors is one touch.
	for _, a := range []string{"anchor-1", "anchor-2"} {
		_, err := store.PutFragment(index.EvidenceFragment{
			Anchor:      a,
			TapeID:      "tape-1",
			EventOffset: 3,
			Kind:        index.KindRead,
			FilePath:    "src/auth.go",
			Timestamp:   "2026-07-01T10:00:00Z",
		})
		if err != nil {
			t.Fatalf("PutFragment failed: %v", err)
		}
	}

	direct, err := store.Lookup([]string{"anchor-1"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	touches, err := CollectTouches(store, direct, []string{"anchor-1", "anchor-2"})
	if err != nil {
		t.Fatalf("CollectTouches failed: %v", err)
	}
	if len(touches) != 1 {
		t.Errorf("Expected 1 deduped touch, got %d", len(touches))
	}
}

func TestBuildSessionsWindowsAndOrdering(t *testing.T) {
	blobs := setupBlobStore(t)

	busy := `{"t":"2026-07-01T10:00:00Z","k":"meta","model":"gpt-5"}
{"t":"2026-07-01T10:00:01Z","k":"msg.in","role":"user","content":"fix auth"}
{"t":"2026-07-01T10:00:02Z","k":"code.read","file":"src/auth.go","range":[10,30]}
{"t":"2026-07-01T10:00:03Z","k":"msg.out","role":"assistant","content":"on it"}
{"t":"2026-07-01T10:00:04Z","k":"tool.call","tool":"bash"}
{"t":"2026-07-01T10:00:05Z","k":"code.edit","file":"src/auth.go"}
`
	quiet := `{"t":"2026-07-02T09:00:00Z","k":"code.read","file":"src/auth.go","range":[1,2]}
`
	writeTape(t, blobs, "tape-busy", busy)
	writeTape(t, blobs, "tape-quiet", quiet)

	touches := []index.EvidenceFragment{
		fragment("tape-quiet", 0, index.KindRead, "2026-07-02T09:00:00Z"),
		fragment("tape-busy", 5, index.KindEdit, "2026-07-01T10:00:05Z"),
		fragment("tape-busy", 2, index.KindRead, "2026-07-01T10:00:02Z"),
		fragment("tape-gone", 0, index.KindRead, "2026-07-03T08:00:00Z"),
	}
	sessions, err := BuildSessions(blobs, touches)
	if err != nil {
		t.Fatalf("BuildSessions failed: %v", err)
	}
	// tape-gone has no blob and contributes no session.
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}

	first := sessions[0]
	if first.TapeID != "tape-busy" || first.TouchCount != 2 {
		t.Fatalf("Expected busiest tape first, got %+v", first)
	}
	if first.LatestTouchTimestamp != "2026-07-01T10:00:05Z" {
		t.Errorf("Unexpected latest timestamp: %s", first.LatestTouchTimestamp)
	}
	// Touches sort by event offset regardless of input order.
	if first.Touches[0].EventOffset != 2 || first.Touches[1].EventOffset != 5 {
		t.Errorf("Unexpected touch order: %+v", first.Touches)
	}

	if len(first.Windows) != 2 {
		t.Fatalf("Expected 2 windows, got %d", len(first.Windows))
	}
	midWindow := first.Windows[0]
	if midWindow.TouchOffset != 2 {
		t.Errorf("Expected window around offset 2, got %d", midWindow.TouchOffset)
	}
	if len(midWindow.Events) != 5 {
		t.Fatalf("Expected 5 events in a mid-tape window, got %d", len(midWindow.Events))
	}
	if midWindow.Events[0].Offset != 0 || midWindow.Events[4].Offset != 4 {
		t.Errorf("Unexpected window bounds: %+v", midWindow.Events)
	}
	if midWindow.Events[0].Event["k"] != "meta" {
		t.Errorf("Expected raw event payloads, got %+v", midWindow.Events[0].Event)
	}

	tailWindow := first.Windows[1]
	if len(tailWindow.Events) != 3 {
		t.Errorf("Expected window clamped at tape end, got %d events", len(tailWindow.Events))
	}

	second := sessions[1]
	if second.TapeID != "tape-quiet" || second.TouchCount != 1 {
		t.Errorf("Unexpected second session: %+v", second)
	}
	if len(second.Windows) != 1 || len(second.Windows[0].Events) != 1 {
		t.Errorf("Expected a single-event window, got %+v", second.Windows)
	}
}

func TestBuildSessionsTapeIDTiebreak(t *testing.T) {
	blobs := setupBlobStore(t)
	row := `{"t":"2026-07-01T10:00:00Z","k":"code.read","file":"src/auth.go","range":[1,1]}
`
	writeTape(t, blobs, "tape-bbb", row)
	writeTape(t, blobs, "tape-aaa", row)

	touches := []index.EvidenceFragment{
		fragment("tape-bbb", 0, index.KindRead, "2026-07-01T10:00:00Z"),
		fragment("tape-aaa", 0, index.KindRead, "2026-07-01T10:00:00Z"),
	}
	sessions, err := BuildSessions(blobs, touches)
	if err != nil {
		t.Fatalf("BuildSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].TapeID != "tape-aaa" || sessions[1].TapeID != "tape-bbb" {
		t.Errorf("Expected tape id ascending on full tie, got %s then %s",
			sessions[0].TapeID, sessions[1].TapeID)
	}
}
