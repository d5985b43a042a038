package adapters

import (
	"reflect"
	"testing"
)

const claudeSession = `{"type":"user","timestamp":"2026-03-01T10:00:00Z","session_id":"sess-claude-1","message":{"role":"user","content":"please fix the bug"}}
{"type":"assistant","timestamp":"2026-03-01T10:00:01Z","message":{"role":"assistant","content":[{"type":"text","text":"Looking at the file."},{"type":"tool_use","id":"toolu_1","name":"Read","input":{"file_path":"/repo/src/main.go","offset":10,"limit":5}}]}}
{"type":"user","timestamp":"2026-03-01T10:00:02Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"10->func main() {"}]}}
{"type":"assistant","timestamp":"2026-03-01T10:00:03Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"toolu_2","name":"Edit","input":{"file_path":"/repo/src/main.go","old_string":"foo","new_string":"bar"}}]}}`

func TestClaudeCodeToTape(t *testing.T) {
	output, err := ClaudeCodeToTape([]byte(claudeSession))
	if err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}
	events := decodeTapeLines(t, output)

	wantKinds := []string{"meta", "msg.in", "msg.out", "tool.call", "code.read", "tool.result", "tool.call", "code.edit"}
	if !reflect.DeepEqual(eventKinds(events), wantKinds) {
		t.Fatalf("Expected kinds %v, got %v", wantKinds, eventKinds(events))
	}

	meta := events[0]
	if meta["t"] != "2026-03-01T10:00:00Z" {
		t.Errorf("Expected meta to carry the first timestamp, got %v", meta["t"])
	}
	if meta["coverage.read"] != "full" || meta["coverage.edit"] != "full" || meta["coverage.tool"] != "full" {
		t.Errorf("Expected full coverage, got %v", meta)
	}
	source, _ := meta["source"].(map[string]any)
	if source["harness"] != "claude-code" || source["session_id"] != "sess-claude-1" {
		t.Errorf("Expected claude-code source with session, got %v", source)
	}

	read := findEvent(events, "code.read")
	if read["file"] != "/repo/src/main.go" {
		t.Errorf("Expected read file, got %v", read["file"])
	}
	if !reflect.DeepEqual(read["range"], []any{float64(10), float64(14)}) {
		t.Errorf("Expected range [10,14] from offset and limit, got %v", read["range"])
	}
	if read["range_basis"] != "line" {
		t.Errorf("Expected line basis, got %v", read["range_basis"])
	}

	result := findEvent(events, "tool.result")
	if result["tool"] != "Read" {
		t.Errorf("Expected tool name resolved via tool_use_id, got %v", result["tool"])
	}
	if result["exit"] != float64(0) || result["stdout"] != "10->func main() {" || result["stderr"] != "" {
		t.Errorf("Unexpected tool.result channels: %v", result)
	}
	if result["call_id"] != "toolu_1" {
		t.Errorf("Expected call_id toolu_1, got %v", result["call_id"])
	}

	edit := findEvent(events, "code.edit")
	if edit["before_hash"] != hashText("foo") || edit["after_hash"] != hashText("bar") {
		t.Errorf("Expected hashed edit strings, got %v", edit)
	}
}

func TestClaudeCodeMultiEditEmitsOnePerEdit(t *testing.T) {
	input := `{"type":"assistant","timestamp":"2026-03-01T11:00:00Z","message":{"content":[{"type":"tool_use","id":"toolu_9","name":"MultiEdit","input":{"file_path":"/repo/a.go","edits":[{"old_string":"x","new_string":"y"},{"old_string":"y","new_string":"z"}]}}]}}`

	events := decodeTapeLines(t, mustConvert(t, ClaudeCodeToTape, input))
	var edits []map[string]any
	for _, event := range events {
		if event["k"] == "code.edit" {
			edits = append(edits, event)
		}
	}
	if len(edits) != 2 {
		t.Fatalf("Expected 2 code.edit events, got %d", len(edits))
	}
	if edits[1]["before_hash"] != hashText("y") || edits[1]["after_hash"] != hashText("z") {
		t.Errorf("Expected second edit hashes, got %v", edits[1])
	}
	if events[0]["coverage.edit"] != "full" {
		t.Errorf("Expected full edit coverage, got %v", events[0]["coverage.edit"])
	}
}

func TestClaudeCodeGradesUnconvertibleUsesPartial(t *testing.T) {
	// A Read without file_path still produces the tool.call but no
	// code.read, so read coverage degrades.
	input := `{"type":"assistant","timestamp":"2026-03-01T12:00:00Z","message":{"content":[{"type":"tool_use","id":"toolu_3","name":"Read","input":{"limit":5}}]}}`

	events := decodeTapeLines(t, mustConvert(t, ClaudeCodeToTape, input))
	if got := eventKinds(events); !reflect.DeepEqual(got, []string{"meta", "tool.call"}) {
		t.Fatalf("Expected meta and tool.call only, got %v", got)
	}
	if events[0]["coverage.read"] != "partial" {
		t.Errorf("Expected partial read coverage, got %v", events[0]["coverage.read"])
	}
	if events[0]["coverage.edit"] != "full" {
		t.Errorf("Expected vacuously full edit coverage, got %v", events[0]["coverage.edit"])
	}
}

func TestClaudeCodeUnpairedToolResult(t *testing.T) {
	input := `{"type":"user","timestamp":"2026-03-01T13:00:00Z","message":{"content":[{"type":"tool_result","tool_use_id":"toolu_gone","is_error":true,"content":"failed"}]}}`

	events := decodeTapeLines(t, mustConvert(t, ClaudeCodeToTape, input))
	result := findEvent(events, "tool.result")
	if result == nil {
		t.Fatal("Expected a tool.result event")
	}
	if result["tool"] != "unknown" {
		t.Errorf("Expected unknown tool for unpaired result, got %v", result["tool"])
	}
	if result["exit"] != float64(1) || result["stdout"] != "failed" {
		t.Errorf("Expected error exit with stdout text, got %v", result)
	}
}

func mustConvert(t *testing.T, convert func([]byte) ([]byte, error), input string) []byte {
	t.Helper()
	output, err := convert([]byte(input))
	if err != nil {
		t.Fatalf("Failed to convert: %v", err)
	}
	return output
}
