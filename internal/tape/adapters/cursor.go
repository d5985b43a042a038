package adapters

import "fmt"

const (
	cursorCoverageTool = "full"
	cursorCoverageRead = "partial"
	cursorCoverageEdit = "partial"
)

// CursorToTape converts a captured cursor stream (NDJSON rows of system,
// message, and tool_call records) into tape JSONL.
//
// Tool calls surface as readToolCall, writeToolCall, or a generic
// function block; only writeToolCall carries a usable file path, so edit
// events are write-based and read coverage stays partial.
func CursorToTape(input []byte) ([]byte, error) {
	rows, err := parseLines(input)
	if err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}

	var out []map[string]any
	sessionID := ""
	firstTimestamp := ""
	emittedMeta := false

	for _, row := range rows {
		if sessionID == "" {
			sessionID = getString(row, "session_id")
		}
		if firstTimestamp == "" {
			firstTimestamp = firstString(row, "timestamp", "t")
		}
		timestamp := firstString(row, "timestamp", "t")
		if timestamp == "" {
			timestamp = firstTimestamp
		}
		if timestamp == "" {
			timestamp = defaultTimestamp
		}

		rowType := getString(row, "type")
		switch rowType {
		case "system":
			if getString(row, "subtype") != "init" {
				continue
			}
			meta := map[string]any{
				"t":             timestamp,
				"k":             "meta",
				"source":        sourceBlock("cursor", sessionID),
				"coverage.tool": cursorCoverageTool,
				"coverage.read": cursorCoverageRead,
				"coverage.edit": cursorCoverageEdit,
			}
			if model := getString(row, "model"); model != "" {
				meta["model"] = model
			}
			out = append(out, meta)
			emittedMeta = true

		case "user", "assistant":
			message := getMap(row, "message")
			role := getString(message, "role")
			if role == "" {
				role = rowType
			}
			content := contentText(message["content"])
			if content == "" {
				continue
			}
			kind := "msg.in"
			if role == "assistant" {
				kind = "msg.out"
			}
			out = append(out, map[string]any{
				"t":       timestamp,
				"k":       kind,
				"source":  sourceBlock("cursor", sessionID),
				"role":    role,
				"content": content,
			})

		case "tool_call":
			callID := getString(row, "call_id")
			tool := cursorToolName(row)
			switch getString(row, "subtype") {
			case "started":
				call := map[string]any{
					"t":      timestamp,
					"k":      "tool.call",
					"source": sourceBlock("cursor", sessionID),
					"tool":   tool,
					"args":   cursorToolArgs(row),
				}
				if callID != "" {
					call["call_id"] = callID
				}
				out = append(out, call)

			case "completed":
				result := map[string]any{
					"t":      timestamp,
					"k":      "tool.result",
					"source": sourceBlock("cursor", sessionID),
					"tool":   tool,
					"exit":   cursorToolExitCode(row),
					"stdout": cursorToolStdout(row),
					"stderr": cursorToolStderr(row),
				}
				if callID != "" {
					result["call_id"] = callID
				}
				out = append(out, result)

				if file := cursorWriteEditPath(row); file != "" {
					out = append(out, map[string]any{
						"t":      timestamp,
						"k":      "code.edit",
						"source": sourceBlock("cursor", sessionID),
						"file":   file,
					})
				}
			}
		}
	}

	if !emittedMeta {
		if firstTimestamp == "" {
			firstTimestamp = defaultTimestamp
		}
		meta := map[string]any{
			"t":             firstTimestamp,
			"k":             "meta",
			"source":        sourceBlock("cursor", sessionID),
			"coverage.tool": cursorCoverageTool,
			"coverage.read": cursorCoverageRead,
			"coverage.edit": cursorCoverageEdit,
		}
		out = append([]map[string]any{meta}, out...)
	}

	return toJSONL(out)
}

func cursorToolName(row map[string]any) string {
	toolCall := getMap(row, "tool_call")
	if toolCall == nil {
		return "unknown"
	}
	if _, ok := toolCall["readToolCall"]; ok {
		return "readToolCall"
	}
	if _, ok := toolCall["writeToolCall"]; ok {
		return "writeToolCall"
	}
	if name := getString(getMap(toolCall, "function"), "name"); name != "" {
		return name
	}
	return "unknown"
}

func cursorToolArgs(row map[string]any) string {
	toolCall := getMap(row, "tool_call")
	for _, pick := range []struct{ block, key string }{
		{"readToolCall", "args"},
		{"writeToolCall", "args"},
		{"function", "arguments"},
	} {
		block := getMap(toolCall, pick.block)
		if block == nil {
			continue
		}
		if raw, ok := block[pick.key]; ok {
			return jsonString(raw)
		}
	}
	return "{}"
}

func cursorToolStdout(row map[string]any) string {
	toolCall := getMap(row, "tool_call")
	read := getMap(getMap(getMap(toolCall, "readToolCall"), "result"), "success")
	if content := getString(read, "content"); content != "" {
		return content
	}
	if success, ok := getMap(getMap(toolCall, "writeToolCall"), "result")["success"]; ok {
		return jsonString(success)
	}
	if success, ok := getMap(getMap(toolCall, "function"), "result")["success"]; ok {
		return jsonString(success)
	}
	return ""
}

func cursorToolStderr(row map[string]any) string {
	toolCall := getMap(row, "tool_call")
	for _, block := range []string{"readToolCall", "writeToolCall", "function"} {
		if errValue, ok := getMap(getMap(toolCall, block), "result")["error"]; ok {
			return jsonString(errValue)
		}
	}
	return ""
}

func cursorToolExitCode(row map[string]any) int64 {
	toolCall := getMap(row, "tool_call")
	for _, block := range []string{"readToolCall", "writeToolCall", "function"} {
		if _, ok := getMap(getMap(toolCall, block), "result")["error"]; ok {
			return 1
		}
	}
	return 0
}

func cursorWriteEditPath(row map[string]any) string {
	write := getMap(getMap(row, "tool_call"), "writeToolCall")
	if write == nil {
		return ""
	}
	if path := getString(getMap(getMap(write, "result"), "success"), "path"); path != "" {
		return path
	}
	return getString(getMap(write, "args"), "path")
}
