package adapters

import (
	"fmt"
	"strings"
)

// OpenCodeToTape converts an opencode session export (a single JSON
// document with info and messages) into tape JSONL.
func OpenCodeToTape(input []byte) ([]byte, error) {
	root, err := parseDocument(input)
	if err != nil {
		return nil, fmt.Errorf("opencode: %w", err)
	}
	rootObj, _ := root.(map[string]any)

	info := getMap(rootObj, "info")
	sessionID := getString(info, "id")

	defaultTS := defaultTimestamp
	if created, ok := getInt(getMap(info, "time"), "created"); ok {
		defaultTS = timestampFromMillis(created)
	}

	out := []map[string]any{{
		"t":             defaultTS,
		"k":             "meta",
		"source":        sourceBlock("opencode", sessionID),
		"coverage.tool": "full",
		// OpenCode also allows shell-based file reads/writes via bash-like
		// tools, which are not uniformly structured into span-level
		// read/edit events.
		"coverage.read": "partial",
		"coverage.edit": "partial",
	}}

	for _, item := range getSlice(rootObj, "messages") {
		message, _ := item.(map[string]any)
		msgInfo := getMap(message, "info")
		role := getString(msgInfo, "role")
		if role == "" {
			role = "assistant"
		}
		timestamp := defaultTimestamp
		if created, ok := getInt(getMap(msgInfo, "time"), "created"); ok {
			timestamp = timestampFromMillis(created)
		}

		for _, partItem := range getSlice(message, "parts") {
			part, _ := partItem.(map[string]any)
			switch getString(part, "type") {
			case "text":
				text := getString(part, "text")
				if text == "" {
					continue
				}
				kind := "msg.in"
				if role == "assistant" {
					kind = "msg.out"
				}
				out = append(out, map[string]any{
					"t":       timestamp,
					"k":       kind,
					"source":  sourceBlock("opencode", sessionID),
					"role":    role,
					"content": text,
				})

			case "tool":
				tool := getString(part, "tool")
				if tool == "" {
					tool = "unknown"
				}
				callID := getString(part, "callID")
				state := getMap(part, "state")
				toolInput := getMap(state, "input")
				args := "{}"
				if raw, ok := state["input"]; ok {
					args = jsonString(raw)
				}

				call := map[string]any{
					"t":      timestamp,
					"k":      "tool.call",
					"source": sourceBlock("opencode", sessionID),
					"tool":   tool,
					"args":   args,
				}
				if callID != "" {
					call["call_id"] = callID
				}
				out = append(out, call)

				switch {
				case strings.EqualFold(tool, "read"):
					if file := getString(toolInput, "filePath"); file != "" {
						start := int64(1)
						if offset, ok := getUint(toolInput, "offset"); ok {
							start = offset + 1
						}
						end := start
						if limit, ok := getUint(toolInput, "limit"); ok && limit > 0 {
							end = start + limit - 1
						}
						out = append(out, map[string]any{
							"t":           timestamp,
							"k":           "code.read",
							"source":      sourceBlock("opencode", sessionID),
							"file":        file,
							"range":       []int64{start, end},
							"range_basis": "line",
						})
					}

				case strings.EqualFold(tool, "edit"):
					if file := getString(toolInput, "filePath"); file != "" {
						edit := map[string]any{
							"t":      timestamp,
							"k":      "code.edit",
							"source": sourceBlock("opencode", sessionID),
							"file":   file,
						}
						if before, ok := toolInput["oldString"].(string); ok {
							edit["before_hash"] = hashText(before)
						}
						if after, ok := toolInput["newString"].(string); ok {
							edit["after_hash"] = hashText(after)
						}
						out = append(out, edit)
					}

				case strings.EqualFold(tool, "write"):
					if file := getString(toolInput, "filePath"); file != "" {
						edit := map[string]any{
							"t":      timestamp,
							"k":      "code.edit",
							"source": sourceBlock("opencode", sessionID),
							"file":   file,
						}
						if content, ok := toolInput["content"].(string); ok {
							edit["after_hash"] = hashText(content)
						}
						out = append(out, edit)
					}

				case strings.EqualFold(tool, "patch"):
					for _, file := range ExtractPatchFiles(getString(toolInput, "patchText")) {
						out = append(out, map[string]any{
							"t":      timestamp,
							"k":      "code.edit",
							"source": sourceBlock("opencode", sessionID),
							"file":   file,
						})
					}
				}

				switch getString(state, "status") {
				case "completed":
					result := map[string]any{
						"t":      timestamp,
						"k":      "tool.result",
						"source": sourceBlock("opencode", sessionID),
						"tool":   tool,
						"stdout": getString(state, "output"),
						"stderr": "",
						"exit":   int64(0),
					}
					if callID != "" {
						result["call_id"] = callID
					}
					out = append(out, result)
				case "error":
					result := map[string]any{
						"t":      timestamp,
						"k":      "tool.result",
						"source": sourceBlock("opencode", sessionID),
						"tool":   tool,
						"stdout": "",
						"stderr": getString(state, "error"),
						"exit":   int64(1),
					}
					if callID != "" {
						result["call_id"] = callID
					}
					out = append(out, result)
				}
			}
		}
	}

	return toJSONL(out)
}
