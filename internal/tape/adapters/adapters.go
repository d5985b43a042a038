// Package adapters converts harness-native session artifacts into the
// normalized tape wire format. Each adapter is a pure function from input
// bytes to tape JSONL; the schema quirks of one harness never leak past
// its adapter.
package adapters

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// defaultTimestamp stands in when a harness row carries no usable time.
const defaultTimestamp = "1970-01-01T00:00:00Z"

// parseLines decodes JSONL input. Lines that are not JSON at all fail the
// conversion; lines that are JSON but not objects decode to nil rows and
// simply carry no fields.
func parseLines(input []byte) ([]map[string]any, error) {
	var rows []map[string]any
	for idx, line := range strings.Split(string(input), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var raw any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", idx+1, err)
		}
		obj, _ := raw.(map[string]any)
		rows = append(rows, obj)
	}
	return rows, nil
}

// parseDocument decodes a whole-file JSON artifact.
func parseDocument(input []byte) (any, error) {
	var root any
	if err := json.Unmarshal(input, &root); err != nil {
		return nil, err
	}
	return root, nil
}

// toJSONL serializes events one compact JSON object per line.
func toJSONL(events []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// sourceBlock builds an event's source envelope. The session id is
// omitted when unknown.
func sourceBlock(harness, sessionID string) map[string]any {
	source := map[string]any{"harness": harness}
	if sessionID != "" {
		source["session_id"] = sessionID
	}
	return source
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// contentText flattens message content: strings pass through, block
// arrays contribute their text, input_text, and output_text fields joined
// by newlines.
func contentText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		var chunks []string
		for _, item := range v {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range []string{"text", "input_text", "output_text"} {
				if text, ok := block[key].(string); ok {
					chunks = append(chunks, text)
				}
			}
		}
		return strings.Join(chunks, "\n")
	}
	return ""
}

// coverageGrade grades a channel by how many of its structured events
// survived conversion. A total of zero means the harness surfaced nothing
// structured on that channel, which counts as vacuously full.
func coverageGrade(total, emitted int) string {
	if total == 0 || emitted == total {
		return "full"
	}
	return "partial"
}

func getString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func firstString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := getString(obj, key); s != "" {
			return s
		}
	}
	return ""
}

func getMap(obj map[string]any, key string) map[string]any {
	m, _ := obj[key].(map[string]any)
	return m
}

func getSlice(obj map[string]any, key string) []any {
	s, _ := obj[key].([]any)
	return s
}

// getUint reads a non-negative integer field, tolerating the float64
// representation JSON numbers decode to.
func getUint(obj map[string]any, key string) (int64, bool) {
	v, ok := obj[key].(float64)
	if !ok || v < 0 || v != math.Trunc(v) {
		return 0, false
	}
	return int64(v), true
}

// getInt reads an integer field of either sign.
func getInt(obj map[string]any, key string) (int64, bool) {
	v, ok := obj[key].(float64)
	if !ok || v != math.Trunc(v) {
		return 0, false
	}
	return int64(v), true
}

// jsonString serializes a value compactly, falling back to an empty
// object on the marshal errors map values cannot realistically hit.
func jsonString(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// timestampFromMillis renders an epoch-milliseconds value as RFC 3339 UTC
// with second precision.
func timestampFromMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
