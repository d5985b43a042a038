package tape

import (
	"encoding/json"
	"strings"
	"testing"

	"engram/internal/errors"
)

const sampleTape = `{"t":"2026-02-22T00:00:00Z","k":"meta","source":{"harness":"codex-cli","session_id":"s1"},"model":"gpt-5","coverage.read":"partial","coverage.edit":"partial","coverage.tool":"full"}
{"t":"2026-02-22T00:00:01Z","k":"msg.in","source":{"harness":"codex-cli","session_id":"s1"},"role":"user","content":"fix the parser"}
{"t":"2026-02-22T00:00:02Z","k":"code.read","source":{"harness":"codex-cli","session_id":"s1"},"file":"src/parser.go","range":[10,20],"range_basis":"line","anchor_hashes":["winnow:00000000000000aa","winnow:00000000000000bb"]}
{"t":"2026-02-22T00:00:03Z","k":"code.edit","source":{"harness":"codex-cli","session_id":"s1"},"file":"src/parser.go","before_hash":"aa","after_hash":"bb"}
`

func TestParseEventsKeepsOffsets(t *testing.T) {
	events, issues, err := ParseEvents([]byte(sampleTape))
	if err != nil {
		t.Fatalf("Failed to parse tape: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("Expected no issues, got %v", issues)
	}
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events))
	}

	for i, event := range events {
		if event.Offset != int64(i) {
			t.Errorf("Expected offset %d, got %d", i, event.Offset)
		}
	}
	if events[0].Kind != KindMeta {
		t.Errorf("Expected meta first, got %s", events[0].Kind)
	}
	if events[0].Model != "gpt-5" {
		t.Errorf("Expected model gpt-5, got %q", events[0].Model)
	}
	if events[0].CoverageTool != "full" {
		t.Errorf("Expected coverage.tool full, got %q", events[0].CoverageTool)
	}
	if events[2].Range == nil || events[2].Range.Start != 10 || events[2].Range.End != 20 {
		t.Errorf("Expected range [10,20], got %+v", events[2].Range)
	}
	if len(events[2].AnchorHashes) != 2 || events[2].AnchorHashes[0] != "winnow:00000000000000aa" {
		t.Errorf("Expected anchor hashes parsed, got %v", events[2].AnchorHashes)
	}
	if events[1].Source.SessionID != "s1" {
		t.Errorf("Expected session id s1, got %q", events[1].Source.SessionID)
	}
}

func TestParseEventsSkipsBadLinesButCountsThem(t *testing.T) {
	input := `{"t":"2026-02-22T00:00:00Z","k":"msg.in","source":{"harness":"cursor"},"content":"a"}
not json
{"t":"2026-02-22T00:00:02Z","source":{"harness":"cursor"}}

{"t":"2026-02-22T00:00:04Z","k":"msg.out","source":{"harness":"cursor"},"content":"b"}
`
	events, issues, err := ParseEvents([]byte(input))
	if err != nil {
		t.Fatalf("Failed to parse tape: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Offset != 0 {
		t.Errorf("Expected first offset 0, got %d", events[0].Offset)
	}
	if events[1].Offset != 4 {
		t.Errorf("Expected second offset 4, got %d", events[1].Offset)
	}

	if len(issues) != 2 {
		t.Fatalf("Expected 2 issues, got %v", issues)
	}
	if issues[0].Line != 2 {
		t.Errorf("Expected first issue on line 2, got %d", issues[0].Line)
	}
	if issues[1].Line != 3 || issues[1].Detail != "missing event kind" {
		t.Errorf("Expected missing-kind issue on line 3, got %+v", issues[1])
	}
}

func TestParseEventsRejectsInvalidUTF8(t *testing.T) {
	_, _, err := ParseEvents([]byte{0xff, 0xfe, '{', '}'})
	if err == nil {
		t.Fatal("Expected error for invalid UTF-8")
	}
	if errors.CodeOf(err) != errors.TapeDecode {
		t.Errorf("Expected tape_decode, got %s", errors.CodeOf(err))
	}
}

func TestLineRangeWireFormat(t *testing.T) {
	data, err := json.Marshal(LineRange{Start: 3, End: 9})
	if err != nil {
		t.Fatalf("Failed to marshal range: %v", err)
	}
	if string(data) != "[3,9]" {
		t.Errorf("Expected [3,9], got %s", string(data))
	}

	var fromArray LineRange
	if err := json.Unmarshal([]byte("[7,11]"), &fromArray); err != nil {
		t.Fatalf("Failed to unmarshal array range: %v", err)
	}
	if fromArray.Start != 7 || fromArray.End != 11 {
		t.Errorf("Expected 7-11, got %d-%d", fromArray.Start, fromArray.End)
	}

	var fromObject LineRange
	if err := json.Unmarshal([]byte(`{"start":2,"end":5}`), &fromObject); err != nil {
		t.Fatalf("Failed to unmarshal object range: %v", err)
	}
	if fromObject.Start != 2 || fromObject.End != 5 {
		t.Errorf("Expected 2-5, got %d-%d", fromObject.Start, fromObject.End)
	}
}

func TestTapeIDIsContentHash(t *testing.T) {
	id := TapeID([]byte(sampleTape))
	if len(id) != 64 {
		t.Fatalf("Expected 64 hex chars, got %d", len(id))
	}
	if id != TapeID([]byte(sampleTape)) {
		t.Error("Expected stable id for identical content")
	}
	if id == TapeID([]byte(sampleTape+"\n{}")) {
		t.Error("Expected different id for different content")
	}
	if TapeID(nil) != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Expected empty-content hash, got %s", TapeID(nil))
	}
}

func TestExtractMetaReportsAllKeys(t *testing.T) {
	events, _, err := ParseEvents([]byte(sampleTape))
	if err != nil {
		t.Fatalf("Failed to parse tape: %v", err)
	}

	meta := ExtractMeta(events)
	if meta == nil {
		t.Fatal("Expected meta summary")
	}
	if meta["model"] != "gpt-5" {
		t.Errorf("Expected model gpt-5, got %v", meta["model"])
	}
	if meta["timestamp"] != "2026-02-22T00:00:00Z" {
		t.Errorf("Expected meta timestamp, got %v", meta["timestamp"])
	}
	for _, key := range []string{"repo_head", "label"} {
		value, present := meta[key]
		if !present {
			t.Errorf("Expected key %s to be present", key)
		}
		if value != nil {
			t.Errorf("Expected %s to be null, got %v", key, value)
		}
	}

	if ExtractMeta(events[1:]) != nil {
		t.Error("Expected nil summary when no meta event exists")
	}
}

func TestCompactEventKeepsAllowlistedFields(t *testing.T) {
	rows := ParseRows([]byte(sampleTape))
	if len(rows) != 4 {
		t.Fatalf("Expected 4 rows, got %d", len(rows))
	}

	compact := CompactEvent(rows[3])
	if compact["offset"] != int64(3) {
		t.Errorf("Expected offset 3, got %v", compact["offset"])
	}
	if compact["k"] != "code.edit" {
		t.Errorf("Expected kind code.edit, got %v", compact["k"])
	}
	if compact["file"] != "src/parser.go" {
		t.Errorf("Expected file, got %v", compact["file"])
	}
	if _, present := compact["source"]; present {
		t.Error("Expected source to be dropped from compact view")
	}

	full := CompactEvent(rows[1])
	if _, present := full["content"]; present {
		t.Error("Expected content to be dropped from compact view")
	}
}

func TestParseRowsSkipsMalformedQuietly(t *testing.T) {
	input := strings.Join([]string{
		`{"t":"x","k":"msg.in"}`,
		"garbage",
		`[1,2]`,
		`{"t":"y","k":"msg.out"}`,
	}, "\n")

	rows := ParseRows([]byte(input))
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Offset != 0 || rows[1].Offset != 3 {
		t.Errorf("Expected offsets 0 and 3, got %d and %d", rows[0].Offset, rows[1].Offset)
	}
}
