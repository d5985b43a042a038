package adapters

import "fmt"

// ClaudeCodeToTape converts a claude-code project session (JSONL rows of
// typed user and assistant messages) into tape JSONL.
//
// Structured Read/Edit/Write/MultiEdit tool uses become code.read and
// code.edit events; the prepended meta grades read and edit coverage by
// how many of those uses carried enough structure to convert.
func ClaudeCodeToTape(input []byte) ([]byte, error) {
	rows, err := parseLines(input)
	if err != nil {
		return nil, fmt.Errorf("claude-code: %w", err)
	}

	var out []map[string]any
	toolByID := map[string]string{}
	sessionID := ""
	firstTimestamp := ""

	var readTotal, readEmitted, editTotal, editEmitted int

	for _, row := range rows {
		timestamp := getString(row, "timestamp")
		if timestamp == "" {
			timestamp = defaultTimestamp
		}
		if firstTimestamp == "" {
			firstTimestamp = timestamp
		}
		if sessionID == "" {
			sessionID = firstString(row, "session_id", "sessionId")
		}

		switch getString(row, "type") {
		case "user":
			message := getMap(row, "message")
			role := getString(message, "role")
			if role == "" {
				role = "user"
			}
			if text, ok := message["content"].(string); ok {
				out = append(out, map[string]any{
					"t":       timestamp,
					"k":       "msg.in",
					"source":  sourceBlock("claude-code", sessionID),
					"role":    role,
					"content": text,
				})
			}
			for _, item := range getSlice(message, "content") {
				block, _ := item.(map[string]any)
				if getString(block, "type") != "tool_result" {
					continue
				}
				toolUseID := getString(block, "tool_use_id")
				tool := toolByID[toolUseID]
				if tool == "" {
					tool = "unknown"
				}
				exit := int64(0)
				if isError, _ := block["is_error"].(bool); isError {
					exit = 1
				}
				result := map[string]any{
					"t":      timestamp,
					"k":      "tool.result",
					"source": sourceBlock("claude-code", sessionID),
					"tool":   tool,
					"exit":   exit,
					"stdout": contentText(block["content"]),
					"stderr": "",
				}
				if toolUseID != "" {
					result["call_id"] = toolUseID
				}
				out = append(out, result)
			}

		case "assistant":
			message := getMap(row, "message")
			role := getString(message, "role")
			if role == "" {
				role = "assistant"
			}
			for _, item := range getSlice(message, "content") {
				block, _ := item.(map[string]any)
				switch getString(block, "type") {
				case "text":
					text := getString(block, "text")
					if text == "" {
						continue
					}
					out = append(out, map[string]any{
						"t":       timestamp,
						"k":       "msg.out",
						"source":  sourceBlock("claude-code", sessionID),
						"role":    role,
						"content": text,
					})

				case "tool_use":
					tool := getString(block, "name")
					if tool == "" {
						tool = "unknown"
					}
					toolUseID := getString(block, "id")
					toolByID[toolUseID] = tool
					toolInput := getMap(block, "input")

					call := map[string]any{
						"t":      timestamp,
						"k":      "tool.call",
						"source": sourceBlock("claude-code", sessionID),
						"tool":   tool,
						"args":   jsonString(block["input"]),
					}
					if toolUseID != "" {
						call["call_id"] = toolUseID
					}
					out = append(out, call)

					switch tool {
					case "Read":
						readTotal++
						file := getString(toolInput, "file_path")
						if file == "" {
							continue
						}
						start := int64(1)
						if offset, ok := getUint(toolInput, "offset"); ok && offset > 1 {
							start = offset
						}
						end := start
						if limit, ok := getUint(toolInput, "limit"); ok && limit > 0 {
							end = start + limit - 1
						}
						out = append(out, map[string]any{
							"t":           timestamp,
							"k":           "code.read",
							"source":      sourceBlock("claude-code", sessionID),
							"file":        file,
							"range":       []int64{start, end},
							"range_basis": "line",
						})
						readEmitted++

					case "Edit":
						editTotal++
						file := getString(toolInput, "file_path")
						if file == "" {
							continue
						}
						edit := map[string]any{
							"t":      timestamp,
							"k":      "code.edit",
							"source": sourceBlock("claude-code", sessionID),
							"file":   file,
						}
						if before, ok := toolInput["old_string"].(string); ok {
							edit["before_hash"] = hashText(before)
						}
						if after, ok := toolInput["new_string"].(string); ok {
							edit["after_hash"] = hashText(after)
						}
						out = append(out, edit)
						editEmitted++

					case "Write":
						editTotal++
						file := getString(toolInput, "file_path")
						if file == "" {
							continue
						}
						edit := map[string]any{
							"t":      timestamp,
							"k":      "code.edit",
							"source": sourceBlock("claude-code", sessionID),
							"file":   file,
						}
						if content, ok := toolInput["content"].(string); ok {
							edit["after_hash"] = hashText(content)
						}
						out = append(out, edit)
						editEmitted++

					case "MultiEdit":
						file := getString(toolInput, "file_path")
						edits, hasEdits := toolInput["edits"].([]any)
						if file == "" || !hasEdits {
							editTotal++
							continue
						}
						editTotal += len(edits)
						for _, entry := range edits {
							editObj, _ := entry.(map[string]any)
							edit := map[string]any{
								"t":      timestamp,
								"k":      "code.edit",
								"source": sourceBlock("claude-code", sessionID),
								"file":   file,
							}
							if before, ok := editObj["old_string"].(string); ok {
								edit["before_hash"] = hashText(before)
							}
							if after, ok := editObj["new_string"].(string); ok {
								edit["after_hash"] = hashText(after)
							}
							out = append(out, edit)
							editEmitted++
						}
					}
				}
			}
		}
	}

	if firstTimestamp == "" {
		firstTimestamp = defaultTimestamp
	}
	meta := map[string]any{
		"t":             firstTimestamp,
		"k":             "meta",
		"source":        sourceBlock("claude-code", sessionID),
		"coverage.read": coverageGrade(readTotal, readEmitted),
		"coverage.edit": coverageGrade(editTotal, editEmitted),
		"coverage.tool": "full",
	}
	out = append([]map[string]any{meta}, out...)
	return toJSONL(out)
}
