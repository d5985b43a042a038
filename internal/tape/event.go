// Package tape models normalized session transcripts: the JSONL wire
// format, zstd blob compression, content-addressed blob storage, and the
// harness adapters that produce tapes from native session artifacts.
package tape

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"engram/internal/errors"
)

// TapeSuffix is the filename suffix of stored tape blobs.
const TapeSuffix = ".jsonl.zst"

// Event kinds of the normalized tape contract.
const (
	KindMsgIn      = "msg.in"
	KindMsgOut     = "msg.out"
	KindToolCall   = "tool.call"
	KindToolResult = "tool.result"
	KindCodeRead   = "code.read"
	KindCodeEdit   = "code.edit"
	KindSpanLink   = "span.link"
	KindMeta       = "meta"
)

// Kinds lists every event kind the contract admits.
var Kinds = []string{
	KindMsgIn, KindMsgOut, KindToolCall, KindToolResult,
	KindCodeRead, KindCodeEdit, KindSpanLink, KindMeta,
}

// KnownKind reports whether k is a contract event kind.
func KnownKind(k string) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Source identifies the harness that produced an event.
type Source struct {
	Harness   string `json:"harness"`
	SessionID string `json:"session_id,omitempty"`
}

// LineRange is a 1-based inclusive line range, serialized as a two-element
// JSON array.
type LineRange struct {
	Start uint32
	End   uint32
}

// MarshalJSON emits the range as [start, end].
func (r LineRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint32{r.Start, r.End})
}

// UnmarshalJSON accepts the [start, end] array form and, for older tapes,
// an object with start and end fields.
func (r *LineRange) UnmarshalJSON(data []byte) error {
	var arr [2]uint32
	if err := json.Unmarshal(data, &arr); err == nil {
		r.Start = arr[0]
		r.End = arr[1]
		return nil
	}
	var obj struct {
		Start uint32 `json:"start"`
		End   uint32 `json:"end"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.Start = obj.Start
	r.End = obj.End
	return nil
}

// Event is one line of a normalized tape. Fields beyond the envelope are
// optional and populated per kind; absent fields are omitted on the wire.
type Event struct {
	// Offset is the 0-based line index of this event in the tape. It is
	// derived during parsing, never serialized.
	Offset int64 `json:"-"`

	Time   string `json:"t"`
	Kind   string `json:"k"`
	Source Source `json:"source"`

	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	Tool   string `json:"tool,omitempty"`
	Args   string `json:"args,omitempty"`
	CallID string `json:"call_id,omitempty"`
	Exit   *int64 `json:"exit,omitempty"`
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
	Cwd    string `json:"cwd,omitempty"`

	File         string     `json:"file,omitempty"`
	Range        *LineRange `json:"range,omitempty"`
	RangeBasis   string     `json:"range_basis,omitempty"`
	AnchorHashes []string   `json:"anchor_hashes,omitempty"`
	BeforeRange  *LineRange `json:"before_range,omitempty"`
	AfterRange   *LineRange `json:"after_range,omitempty"`
	BeforeHash   string     `json:"before_hash,omitempty"`
	AfterHash    string     `json:"after_hash,omitempty"`

	FromFile   string     `json:"from_file,omitempty"`
	FromRange  *LineRange `json:"from_range,omitempty"`
	ToFile     string     `json:"to_file,omitempty"`
	ToRange    *LineRange `json:"to_range,omitempty"`
	Note       string     `json:"note,omitempty"`
	Similarity *float64   `json:"similarity,omitempty"`

	Model        string `json:"model,omitempty"`
	RepoHead     string `json:"repo_head,omitempty"`
	Label        string `json:"label,omitempty"`
	CoverageRead string `json:"coverage.read,omitempty"`
	CoverageEdit string `json:"coverage.edit,omitempty"`
	CoverageTool string `json:"coverage.tool,omitempty"`
}

// ParseIssue describes one tape line that could not be parsed as an event.
// Line is 1-based.
type ParseIssue struct {
	Line   int    `json:"line"`
	Detail string `json:"detail"`
}

// ParseEvents decodes tape JSONL into typed events. Empty lines are
// skipped; lines that fail to decode or lack an event kind are skipped
// with an issue. Offsets count every line, parsed or not, so they stay
// aligned with the raw tape content.
func ParseEvents(data []byte) ([]Event, []ParseIssue, error) {
	if !utf8.Valid(data) {
		return nil, nil, errors.New(errors.TapeDecode, "tape content is not valid UTF-8")
	}

	var events []Event
	var issues []ParseIssue
	for idx, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			issues = append(issues, ParseIssue{Line: idx + 1, Detail: err.Error()})
			continue
		}
		if ev.Kind == "" {
			issues = append(issues, ParseIssue{Line: idx + 1, Detail: "missing event kind"})
			continue
		}
		ev.Offset = int64(idx)
		events = append(events, ev)
	}
	return events, issues, nil
}

// Row is one tape line kept as raw JSON with its line offset. Rows feed
// the views that must not lose fields the typed Event does not model.
type Row struct {
	Offset int64
	Value  map[string]any
}

// ParseRows decodes tape JSONL into raw rows, quietly skipping lines that
// are not JSON objects. Offsets match ParseEvents.
func ParseRows(data []byte) []Row {
	var rows []Row
	for idx, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var value map[string]any
		if err := json.Unmarshal([]byte(line), &value); err != nil {
			continue
		}
		rows = append(rows, Row{Offset: int64(idx), Value: value})
	}
	return rows
}

// TapeID derives a tape's content id: the SHA-256 hex digest of its
// uncompressed JSONL bytes.
func TapeID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ExtractMeta summarizes the first meta event of a tape, or nil when the
// tape carries none. Every key is present; missing values are null.
func ExtractMeta(events []Event) map[string]any {
	for _, ev := range events {
		if ev.Kind != KindMeta {
			continue
		}
		return map[string]any{
			"timestamp":     nullableString(ev.Time),
			"model":         nullableString(ev.Model),
			"repo_head":     nullableString(ev.RepoHead),
			"label":         nullableString(ev.Label),
			"coverage.read": nullableString(ev.CoverageRead),
			"coverage.edit": nullableString(ev.CoverageEdit),
			"coverage.tool": nullableString(ev.CoverageTool),
		}
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// compactKeys is the field allowlist of show's default event view.
var compactKeys = []string{
	"t", "k", "role", "tool", "file",
	"range", "before_range", "after_range", "before_hash", "after_hash",
	"from_file", "from_range", "to_file", "to_range", "note", "exit",
}

// CompactEvent projects a raw row down to its offset plus the compact
// field allowlist.
func CompactEvent(row Row) map[string]any {
	out := map[string]any{"offset": row.Offset}
	for _, key := range compactKeys {
		if value, ok := row.Value[key]; ok {
			out[key] = value
		}
	}
	return out
}
