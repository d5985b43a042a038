package adapters

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	codexCoverageTool = "full"
	codexCoverageRead = "partial"
	codexCoverageEdit = "partial"
)

// CodexToTape converts a codex-cli session log (JSONL rows of session
// metadata and response items) into tape JSONL.
//
// apply_patch calls contribute code.edit events for the files named in
// the patch envelope. Reads go through shell output, so read coverage
// stays partial.
func CodexToTape(input []byte) ([]byte, error) {
	rows, err := parseLines(input)
	if err != nil {
		return nil, fmt.Errorf("codex-cli: %w", err)
	}

	var out []map[string]any
	callTools := map[string]string{}
	sessionID := ""
	firstTimestamp := ""
	emittedMeta := false

	for _, row := range rows {
		if sessionID == "" {
			sessionID = codexSessionID(row)
		}
		timestamp := getString(row, "timestamp")
		if timestamp == "" {
			timestamp = defaultTimestamp
		}
		if firstTimestamp == "" {
			firstTimestamp = timestamp
		}

		switch getString(row, "type") {
		case "session_meta":
			payload := getMap(row, "payload")
			model := firstString(payload, "model", "model_provider")
			repoHead := getString(getMap(payload, "git"), "commit_hash")
			out = append(out, codexMetaEvent(timestamp, sessionID, model, repoHead))
			emittedMeta = true

		case "response_item":
			payload := getMap(row, "payload")
			switch getString(payload, "type") {
			case "message":
				role := getString(payload, "role")
				if role == "" {
					role = "assistant"
				}
				content := contentText(payload["content"])
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
					"source":  sourceBlock("codex-cli", sessionID),
					"role":    role,
					"content": content,
				})

			case "function_call":
				tool := getString(payload, "name")
				if tool == "" {
					tool = "unknown"
				}
				callID := getString(payload, "call_id")
				args := getString(payload, "arguments")
				if callID != "" {
					callTools[callID] = tool
				}
				call := map[string]any{
					"t":      timestamp,
					"k":      "tool.call",
					"source": sourceBlock("codex-cli", sessionID),
					"tool":   tool,
					"args":   args,
				}
				if callID != "" {
					call["call_id"] = callID
				}
				out = append(out, call)
				if tool == "apply_patch" {
					for _, file := range ExtractApplyPatchFiles(args) {
						out = append(out, map[string]any{
							"t":      timestamp,
							"k":      "code.edit",
							"source": sourceBlock("codex-cli", sessionID),
							"file":   file,
						})
					}
				}

			case "function_call_output":
				callID := getString(payload, "call_id")
				output := getString(payload, "output")
				tool := callTools[callID]
				if tool == "" {
					tool = "unknown"
				}
				result := map[string]any{
					"t":      timestamp,
					"k":      "tool.result",
					"source": sourceBlock("codex-cli", sessionID),
					"tool":   tool,
					"stdout": output,
					"stderr": "",
				}
				if callID != "" {
					result["call_id"] = callID
				}
				if exit, ok := extractExitCode(output); ok {
					result["exit"] = exit
				}
				out = append(out, result)
			}
		}
	}

	if !emittedMeta {
		if firstTimestamp == "" {
			firstTimestamp = defaultTimestamp
		}
		meta := codexMetaEvent(firstTimestamp, sessionID, "", "")
		out = append([]map[string]any{meta}, out...)
	}

	return toJSONL(out)
}

func codexMetaEvent(timestamp, sessionID, model, repoHead string) map[string]any {
	event := map[string]any{
		"t":             timestamp,
		"k":             "meta",
		"source":        sourceBlock("codex-cli", sessionID),
		"coverage.tool": codexCoverageTool,
		"coverage.read": codexCoverageRead,
		"coverage.edit": codexCoverageEdit,
	}
	if model != "" {
		event["model"] = model
	}
	if repoHead != "" {
		event["repo_head"] = repoHead
	}
	return event
}

func codexSessionID(row map[string]any) string {
	if id := getString(row, "session_id"); id != "" {
		return id
	}
	payload := getMap(row, "payload")
	if id := getString(payload, "session_id"); id != "" {
		return id
	}
	return getString(getMap(payload, "session"), "id")
}

// extractExitCode scans shell output for the codex exit marker line.
func extractExitCode(output string) (int64, bool) {
	const prefix = "Process exited with code "
	for _, line := range strings.Split(output, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), prefix)
		if !ok {
			continue
		}
		if exit, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return exit, true
		}
	}
	return 0, false
}
