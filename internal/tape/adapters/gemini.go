package adapters

import (
	"fmt"
	"strings"
)

// GeminiToTape converts a gemini-cli artifact into tape JSONL. Two input
// shapes exist: logs.json is a bare array of typed message rows, while
// chat session files are objects with messages and structured toolCalls.
func GeminiToTape(input []byte) ([]byte, error) {
	root, err := parseDocument(input)
	if err != nil {
		return nil, fmt.Errorf("gemini-cli: %w", err)
	}

	if rows, ok := root.([]any); ok {
		return geminiLogsToTape(rows)
	}

	rootObj, _ := root.(map[string]any)
	sessionID := getString(rootObj, "sessionId")
	defaultTS := getString(rootObj, "startTime")
	if defaultTS == "" {
		defaultTS = defaultTimestamp
	}
	model := ""

	var readTotal, readEmitted, editTotal, editEmitted int

	out := []map[string]any{{
		"t":             defaultTS,
		"k":             "meta",
		"source":        sourceBlock("gemini-cli", sessionID),
		"coverage.tool": "full",
		// read_file lacks explicit span ranges; writes outside write_file
		// may exist.
		"coverage.read": "partial",
		"coverage.edit": "partial",
	}}

	for _, item := range getSlice(rootObj, "messages") {
		message, _ := item.(map[string]any)
		messageType := getString(message, "type")
		timestamp := getString(message, "timestamp")
		if timestamp == "" {
			timestamp = defaultTS
		}

		if model == "" && messageType == "gemini" {
			model = getString(message, "model")
		}

		switch messageType {
		case "user":
			if content := getString(message, "content"); content != "" {
				out = append(out, map[string]any{
					"t":       timestamp,
					"k":       "msg.in",
					"source":  sourceBlock("gemini-cli", sessionID),
					"role":    "user",
					"content": content,
				})
			}

		case "gemini":
			if content := getString(message, "content"); content != "" {
				out = append(out, map[string]any{
					"t":       timestamp,
					"k":       "msg.out",
					"source":  sourceBlock("gemini-cli", sessionID),
					"role":    "assistant",
					"content": content,
				})
			}

			for _, callItem := range getSlice(message, "toolCalls") {
				toolCall, _ := callItem.(map[string]any)
				toolTimestamp := getString(toolCall, "timestamp")
				if toolTimestamp == "" {
					toolTimestamp = timestamp
				}
				tool := getString(toolCall, "name")
				if tool == "" {
					tool = "unknown"
				}
				callID := getString(toolCall, "id")
				args := getMap(toolCall, "args")
				argsJSON := "{}"
				if raw, ok := toolCall["args"]; ok {
					argsJSON = jsonString(raw)
				}

				call := map[string]any{
					"t":      toolTimestamp,
					"k":      "tool.call",
					"source": sourceBlock("gemini-cli", sessionID),
					"tool":   tool,
					"args":   argsJSON,
				}
				if callID != "" {
					call["call_id"] = callID
				}
				out = append(out, call)

				if strings.EqualFold(tool, "read_file") {
					readTotal++
					if file := getString(args, "file_path"); file != "" {
						out = append(out, map[string]any{
							"t":           toolTimestamp,
							"k":           "code.read",
							"source":      sourceBlock("gemini-cli", sessionID),
							"file":        file,
							"range":       []int64{1, 1},
							"range_basis": "line",
						})
						readEmitted++
					}
				}

				if strings.EqualFold(tool, "write_file") {
					editTotal++
					if file := getString(args, "file_path"); file != "" {
						edit := map[string]any{
							"t":      toolTimestamp,
							"k":      "code.edit",
							"source": sourceBlock("gemini-cli", sessionID),
							"file":   file,
						}
						if content, ok := args["content"].(string); ok {
							edit["after_hash"] = hashText(content)
						}
						out = append(out, edit)
						editEmitted++
					}
				}

				stdout, stderr, exit := geminiToolResult(toolCall)
				result := map[string]any{
					"t":      toolTimestamp,
					"k":      "tool.result",
					"source": sourceBlock("gemini-cli", sessionID),
					"tool":   tool,
					"exit":   exit,
					"stdout": stdout,
					"stderr": stderr,
				}
				if callID != "" {
					result["call_id"] = callID
				}
				out = append(out, result)
			}
		}
	}

	meta := out[0]
	meta["coverage.read"] = coverageGrade(readTotal, readEmitted)
	meta["coverage.edit"] = coverageGrade(editTotal, editEmitted)
	if model != "" {
		meta["model"] = model
	}

	return toJSONL(out)
}

// geminiLogsToTape handles the logs.json shape: message text only, so
// every coverage channel grades none.
func geminiLogsToTape(rows []any) ([]byte, error) {
	firstRow, _ := first(rows).(map[string]any)
	firstTimestamp := getString(firstRow, "timestamp")
	if firstTimestamp == "" {
		firstTimestamp = defaultTimestamp
	}
	sessionID := getString(firstRow, "sessionId")

	out := []map[string]any{{
		"t":             firstTimestamp,
		"k":             "meta",
		"source":        sourceBlock("gemini-cli", sessionID),
		"coverage.read": "none",
		"coverage.edit": "none",
		"coverage.tool": "none",
	}}

	for _, item := range rows {
		row, _ := item.(map[string]any)
		timestamp := getString(row, "timestamp")
		if timestamp == "" {
			timestamp = firstTimestamp
		}
		content := getString(row, "message")
		if content == "" {
			continue
		}
		switch getString(row, "type") {
		case "user":
			out = append(out, map[string]any{
				"t":       timestamp,
				"k":       "msg.in",
				"source":  sourceBlock("gemini-cli", sessionID),
				"role":    "user",
				"content": content,
			})
		case "gemini":
			out = append(out, map[string]any{
				"t":       timestamp,
				"k":       "msg.out",
				"source":  sourceBlock("gemini-cli", sessionID),
				"role":    "assistant",
				"content": content,
			})
		}
	}

	return toJSONL(out)
}

func geminiToolResult(toolCall map[string]any) (stdout, stderr string, exit int64) {
	if getString(toolCall, "status") != "success" {
		exit = 1
	}

	for _, item := range getSlice(toolCall, "result") {
		result, _ := item.(map[string]any)
		response := getMap(getMap(result, "functionResponse"), "response")
		if response == nil {
			continue
		}
		if errText, ok := response["error"].(string); ok {
			stderr = errText
			exit = 1
		} else if output, ok := response["output"].(string); ok {
			stdout = output
		} else {
			stdout = jsonString(response)
		}
	}

	if stdout == "" && stderr == "" {
		if display, ok := toolCall["resultDisplay"].(string); ok {
			stdout = display
		}
	}
	return stdout, stderr, exit
}

func first(items []any) any {
	if len(items) == 0 {
		return nil
	}
	return items[0]
}
