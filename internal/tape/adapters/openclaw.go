package adapters

import (
	"fmt"
	"strings"
)

// OpenClawToTape converts an openclaw session log into tape JSONL. Two
// row layouts exist side by side: nested rows wrap a message object with
// role-tagged content blocks, while flat rows either carry role and
// content at the top level or are already normalized events with a "k"
// field. Normalized rows pass through with only their envelope filled in.
func OpenClawToTape(input []byte) ([]byte, error) {
	rows, err := parseLines(input)
	if err != nil {
		return nil, fmt.Errorf("openclaw: %w", err)
	}

	var events []map[string]any
	sessionID := ""
	for _, row := range rows {
		openclawRow(row, rows, &events, &sessionID)
	}

	ts := defaultTimestamp
	for _, event := range events {
		if t := getString(event, "t"); t != "" {
			ts = t
			break
		}
	}
	meta := map[string]any{
		"t":             ts,
		"k":             "meta",
		"source":        sourceBlock("openclaw", sessionID),
		"coverage.tool": "partial",
		"coverage.read": "none",
		"coverage.edit": "none",
	}
	return toJSONL(append([]map[string]any{meta}, events...))
}

func openclawRow(row map[string]any, allRows []map[string]any, out *[]map[string]any, sessionID *string) {
	if row == nil {
		return
	}

	// Already-normalized rows keep every field they came with.
	if getString(row, "k") != "" {
		*out = append(*out, openclawPassthrough(row, *sessionID))
		return
	}

	eventType := getString(row, "type")
	if eventType == "session" {
		if *sessionID == "" {
			if id := getString(row, "id"); id != "" {
				*sessionID = id
			} else {
				*sessionID = getString(getMap(row, "session"), "id")
			}
		}
		return
	}

	// Flat transcript rows carry role and content at the top level.
	if eventType == "" {
		if *sessionID == "" {
			*sessionID = firstString(row, "session_id", "sessionId")
		}
		role := getString(row, "role")
		content := getString(row, "content")
		if role == "" || content == "" {
			return
		}
		kind := "msg.in"
		if role == "assistant" {
			kind = "msg.out"
		}
		*out = append(*out, map[string]any{
			"t":       openclawTimestamp(row),
			"k":       kind,
			"source":  sourceBlock("openclaw", *sessionID),
			"role":    role,
			"content": content,
		})
		return
	}

	if eventType != "message" {
		return
	}

	timestamp := openclawTimestamp(row)
	if *sessionID == "" {
		*sessionID = firstString(row, "session_id", "sessionId")
	}
	if *sessionID == "" {
		*sessionID = openclawSessionFromRows(allRows)
	}

	message := getMap(row, "message")
	if message == nil {
		return
	}
	contentBlocks := getSlice(message, "content")

	switch getString(message, "role") {
	case "user":
		if text := joinTextBlocks(contentBlocks); text != "" {
			*out = append(*out, map[string]any{
				"t":       timestamp,
				"k":       "msg.in",
				"source":  sourceBlock("openclaw", *sessionID),
				"role":    "user",
				"content": text,
			})
		}

	case "assistant":
		if text := joinTextBlocks(contentBlocks); text != "" {
			*out = append(*out, map[string]any{
				"t":       timestamp,
				"k":       "msg.out",
				"source":  sourceBlock("openclaw", *sessionID),
				"role":    "assistant",
				"content": text,
			})
		}
		for _, item := range contentBlocks {
			block, _ := item.(map[string]any)
			if getString(block, "type") != "toolCall" {
				continue
			}
			tool := getString(block, "name")
			if tool == "" {
				tool = "unknown"
			}
			args := "{}"
			if raw, ok := block["arguments"]; ok {
				args = jsonString(raw)
			}

			call := map[string]any{
				"t":      timestamp,
				"k":      "tool.call",
				"source": sourceBlock("openclaw", *sessionID),
				"tool":   tool,
				"args":   args,
			}
			if callID := getString(block, "id"); callID != "" {
				call["call_id"] = callID
			}
			*out = append(*out, call)

			if edit := openclawCodeEdit(timestamp, *sessionID, block["arguments"]); edit != nil {
				*out = append(*out, edit)
			}
		}

	case "toolResult":
		text := joinTextBlocks(contentBlocks)
		isError, _ := message["isError"].(bool)
		tool := getString(message, "toolName")
		if tool == "" {
			tool = "unknown"
		}
		exit, stdout, stderr := int64(0), text, ""
		if isError {
			exit, stdout, stderr = 1, "", text
		}
		result := map[string]any{
			"t":      timestamp,
			"k":      "tool.result",
			"source": sourceBlock("openclaw", *sessionID),
			"tool":   tool,
			"exit":   exit,
			"stdout": stdout,
			"stderr": stderr,
		}
		if callID := getString(message, "toolCallId"); callID != "" {
			result["call_id"] = callID
		}
		*out = append(*out, result)
	}
}

func openclawPassthrough(row map[string]any, sessionID string) map[string]any {
	out := make(map[string]any, len(row)+2)
	for key, value := range row {
		out[key] = value
	}
	if getString(out, "t") == "" {
		out["t"] = openclawTimestamp(row)
	}
	if getMap(out, "source") == nil {
		out["source"] = sourceBlock("openclaw", sessionID)
	}
	return out
}

// openclawCodeEdit lifts a structured edit out of tool call arguments
// when they name a file and carry at least one content hash.
func openclawCodeEdit(timestamp, sessionID string, argsValue any) map[string]any {
	args, ok := argsValue.(map[string]any)
	if !ok {
		return nil
	}
	file := firstString(args, "file", "file_path", "path")
	if file == "" {
		return nil
	}
	before, beforeOK := args["before_hash"].(string)
	after, afterOK := args["after_hash"].(string)
	if !beforeOK && !afterOK {
		return nil
	}

	edit := map[string]any{
		"t":      timestamp,
		"k":      "code.edit",
		"source": sourceBlock("openclaw", sessionID),
		"file":   file,
	}
	if beforeOK {
		edit["before_hash"] = before
	}
	if afterOK {
		edit["after_hash"] = after
	}
	return edit
}

func openclawSessionFromRows(rows []map[string]any) string {
	for _, row := range rows {
		if getString(row, "type") != "session" {
			continue
		}
		if id := getString(row, "id"); id != "" {
			return id
		}
	}
	return ""
}

// joinTextBlocks collects the text blocks of a content array. Thinking
// and other non-text blocks are skipped.
func joinTextBlocks(blocks []any) string {
	var chunks []string
	for _, item := range blocks {
		block, _ := item.(map[string]any)
		if getString(block, "type") != "text" {
			continue
		}
		if text := getString(block, "text"); text != "" {
			chunks = append(chunks, text)
		}
	}
	return strings.Join(chunks, "\n")
}

func openclawTimestamp(row map[string]any) string {
	if ts := firstString(row, "timestamp", "t", "time"); ts != "" {
		return ts
	}
	if millis, ok := getInt(row, "timestamp"); ok {
		return timestampFromMillis(millis)
	}
	return defaultTimestamp
}
