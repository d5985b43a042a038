package tape

import (
	"encoding/json"
	"fmt"
	"strings"

	"engram/internal/errors"
	"engram/internal/tape/adapters"
)

// AdapterID identifies a supported harness adapter.
type AdapterID string

const (
	AdapterClaudeCode AdapterID = "claude-code"
	AdapterCodexCLI   AdapterID = "codex-cli"
	AdapterOpenCode   AdapterID = "opencode"
	AdapterGeminiCLI  AdapterID = "gemini-cli"
	AdapterCursor     AdapterID = "cursor"
	AdapterOpenClaw   AdapterID = "openclaw"
)

// AdapterStatus reports how far an adapter's harness mapping has been
// taken.
type AdapterStatus string

const (
	StatusImplemented       AdapterStatus = "implemented"
	StatusDiscoveryRequired AdapterStatus = "discovery_required"
)

// Coverage grades per evidence channel.
const (
	CoverageFull    = "full"
	CoveragePartial = "partial"
	CoverageNone    = "none"
)

// Coverage describes how completely an adapter recovers each evidence
// channel from its harness.
type Coverage struct {
	Read string `json:"read"`
	Edit string `json:"edit"`
	Tool string `json:"tool"`
}

// ValidCoverageGrade reports whether s is a recognized coverage grade.
func ValidCoverageGrade(s string) bool {
	return s == CoverageFull || s == CoveragePartial || s == CoverageNone
}

// MappingRule documents one source-to-target conversion rule of an
// adapter.
type MappingRule struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Note   string `json:"note"`
}

// AdapterDescriptor is the registry entry for one harness adapter: where
// its artifacts live, what samples its mapping was derived from, and the
// mapping itself.
type AdapterDescriptor struct {
	ID                    AdapterID     `json:"id"`
	Status                AdapterStatus `json:"status"`
	ArtifactPathTemplates []string      `json:"artifact_path_templates"`
	SchemaSampleSet       []string      `json:"schema_sample_set"`
	MappingTable          []MappingRule `json:"mapping_table"`
	Coverage              Coverage      `json:"coverage"`
}

// Registry lists every known adapter.
func Registry() []AdapterDescriptor {
	return []AdapterDescriptor{
		{
			ID:     AdapterClaudeCode,
			Status: StatusImplemented,
			ArtifactPathTemplates: []string{
				"~/.claude/projects/<project>/<session>.jsonl",
				"~/.claude/projects/<project>/<session>/tool-results/*.txt",
			},
			SchemaSampleSet: []string{"claude-jsonl"},
			MappingTable: []MappingRule{
				{Source: "assistant/text", Target: "msg.out", Note: "text block"},
				{Source: "assistant/tool_use", Target: "tool.call", Note: "paired by tool_use.id"},
				{Source: "user/tool_result", Target: "tool.result", Note: "paired by tool_use_id"},
				{Source: "Read tool", Target: "code.read", Note: "structured file and range"},
				{Source: "Edit/Write/MultiEdit tool", Target: "code.edit", Note: "structured file mutation"},
			},
			Coverage: Coverage{Read: CoverageFull, Edit: CoverageFull, Tool: CoverageFull},
		},
		{
			ID:     AdapterCodexCLI,
			Status: StatusImplemented,
			ArtifactPathTemplates: []string{
				"~/.codex/sessions/YYYY/MM/DD/*.jsonl",
				"~/.codex/history.jsonl",
			},
			SchemaSampleSet: []string{"codex-jsonl"},
			MappingTable: []MappingRule{
				{Source: "session metadata", Target: "meta", Note: "model/repo metadata"},
				{Source: "response_item/message", Target: "msg.in|msg.out", Note: "role-dependent"},
				{Source: "response_item/function_call", Target: "tool.call", Note: "name and arguments"},
				{Source: "response_item/function_call_output", Target: "tool.result", Note: "paired by call_id"},
				{Source: "apply_patch payload", Target: "code.edit", Note: "file touch extraction"},
			},
			Coverage: Coverage{Read: CoveragePartial, Edit: CoveragePartial, Tool: CoverageFull},
		},
		{
			ID:     AdapterOpenCode,
			Status: StatusImplemented,
			ArtifactPathTemplates: []string{
				"~/.local/share/opencode/storage/session/<project-id>/*.json",
				"~/.local/share/opencode/storage/message/<session-id>/*.json",
				"~/.local/share/opencode/storage/part/<message-id>/*.json",
				"XDG_DATA_HOME/opencode/storage/**",
			},
			SchemaSampleSet: []string{"opencode-session-export-json", "opencode-storage-part-json"},
			MappingTable: []MappingRule{
				{Source: "messages[].parts[].type=text", Target: "msg.in|msg.out", Note: "role from messages[].info.role"},
				{Source: "messages[].parts[].type=tool", Target: "tool.call", Note: "tool + callID + serialized state.input"},
				{Source: "tool state.status=completed|error", Target: "tool.result", Note: "completed=>exit=0/stdout, error=>exit=1/stderr"},
				{Source: "tool=read with state.input.filePath", Target: "code.read", Note: "range from offset/limit when present"},
				{Source: "tool=edit|write|patch", Target: "code.edit", Note: "structured filePath or patchText file extraction"},
			},
			Coverage: Coverage{Read: CoveragePartial, Edit: CoveragePartial, Tool: CoverageFull},
		},
		{
			ID:     AdapterGeminiCLI,
			Status: StatusImplemented,
			ArtifactPathTemplates: []string{
				"~/.gemini/tmp/*/chats/session-*.json",
				"~/.gemini/tmp/*/logs.json",
			},
			SchemaSampleSet: []string{"gemini-session-json", "gemini-logs-json"},
			MappingTable: []MappingRule{
				{Source: "messages[type=user].content", Target: "msg.in", Note: "user prompt text"},
				{Source: "messages[type=gemini].content", Target: "msg.out", Note: "assistant response text"},
				{Source: "messages[type=gemini].toolCalls[]", Target: "tool.call|tool.result", Note: "paired by toolCalls.id"},
				{Source: "toolCalls[name=read_file].args.file_path", Target: "code.read", Note: "range normalized to [1,1]"},
				{Source: "toolCalls[name=write_file].args.{file_path,content}", Target: "code.edit", Note: "after_hash from deterministic content hash"},
				{Source: "logs.json[]", Target: "meta+msg.in|msg.out", Note: "message-only fallback with none coverage"},
			},
			Coverage: Coverage{Read: CoveragePartial, Edit: CoveragePartial, Tool: CoverageFull},
		},
		{
			ID:     AdapterOpenClaw,
			Status: StatusImplemented,
			ArtifactPathTemplates: []string{
				"~/.openclaw/sessions/**/*.jsonl",
				"~/.openclaw/logs/*.log",
			},
			SchemaSampleSet: []string{"openclaw-session-jsonl", "openclaw-node-log"},
			MappingTable: []MappingRule{
				{Source: "role/content", Target: "msg.in|msg.out", Note: "user/assistant transcript rows"},
				{Source: "tool.call/tool.result rows", Target: "tool.call|tool.result", Note: "deterministic serialization of args/stdout/stderr"},
				{Source: "code.read|code.edit rows", Target: "code.read|code.edit", Note: "structured file/range/hash fields when present"},
			},
			Coverage: Coverage{Read: CoveragePartial, Edit: CoveragePartial, Tool: CoveragePartial},
		},
		{
			ID:     AdapterCursor,
			Status: StatusImplemented,
			ArtifactPathTemplates: []string{
				"<capture>/cursor-stream-jsonl.ndjson",
				"<capture>/cursor-stream-jsonl-*.ndjson",
			},
			SchemaSampleSet: []string{"cursor-cli-stream-json-ndjson", "cursor-capture-ndjson"},
			MappingTable: []MappingRule{
				{Source: "system/init", Target: "meta", Note: "model + fixed coverage grades"},
				{Source: "user.message.content[].text", Target: "msg.in", Note: "joined text blocks"},
				{Source: "assistant.message.content[].text", Target: "msg.out", Note: "joined text blocks"},
				{Source: "tool_call[subtype=started]", Target: "tool.call", Note: "readToolCall/writeToolCall/function + call_id"},
				{Source: "tool_call[subtype=completed]", Target: "tool.result", Note: "deterministic exit/stdout/stderr extraction"},
				{Source: "writeToolCall.result.success.path", Target: "code.edit", Note: "file path only; read ranges unavailable in schema"},
			},
			Coverage: Coverage{Read: CoveragePartial, Edit: CoveragePartial, Tool: CoverageFull},
		},
	}
}

// DescriptorFor looks up the registry entry for an adapter id.
func DescriptorFor(id AdapterID) (AdapterDescriptor, bool) {
	for _, descriptor := range Registry() {
		if descriptor.ID == id {
			return descriptor, true
		}
	}
	return AdapterDescriptor{}, false
}

// DiscoveryScaffold expands an adapter's artifact path templates against a
// home directory.
func DiscoveryScaffold(id AdapterID, homeDir string) []string {
	descriptor, ok := DescriptorFor(id)
	if !ok {
		return nil
	}
	paths := make([]string, 0, len(descriptor.ArtifactPathTemplates))
	for _, template := range descriptor.ArtifactPathTemplates {
		paths = append(paths, strings.ReplaceAll(template, "~", homeDir))
	}
	return paths
}

// ChoiceAuto names the adapter choice that defers to per-path detection.
const ChoiceAuto = "auto"

// ParseAdapterChoice maps a CLI or config adapter name to an adapter id.
// Empty and "auto" mean detection; the short names and full ids are both
// accepted. Unknown names are a config error.
func ParseAdapterChoice(s string) (AdapterID, bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", ChoiceAuto:
		return "", true, nil
	case "codex", string(AdapterCodexCLI):
		return AdapterCodexCLI, false, nil
	case "claude", string(AdapterClaudeCode):
		return AdapterClaudeCode, false, nil
	case "cursor":
		return AdapterCursor, false, nil
	case "gemini", string(AdapterGeminiCLI):
		return AdapterGeminiCLI, false, nil
	case "opencode":
		return AdapterOpenCode, false, nil
	case "openclaw":
		return AdapterOpenClaw, false, nil
	}
	return "", false, errors.New(errors.ConfigError, fmt.Sprintf("unknown adapter `%s`", s))
}

// ConvertWithAdapter normalizes a harness-native session artifact into
// tape JSONL.
func ConvertWithAdapter(id AdapterID, input []byte) ([]byte, error) {
	var out []byte
	var err error
	switch id {
	case AdapterClaudeCode:
		out, err = adapters.ClaudeCodeToTape(input)
	case AdapterCodexCLI:
		out, err = adapters.CodexToTape(input)
	case AdapterOpenCode:
		out, err = adapters.OpenCodeToTape(input)
	case AdapterCursor:
		out, err = adapters.CursorToTape(input)
	case AdapterGeminiCLI:
		out, err = adapters.GeminiToTape(input)
	case AdapterOpenClaw:
		out, err = adapters.OpenClawToTape(input)
	default:
		return nil, errors.New(errors.AdapterError, fmt.Sprintf("unknown adapter `%s`", id))
	}
	if err != nil {
		return nil, errors.NewEngramError(errors.AdapterError, fmt.Sprintf("adapter %s failed", id), err)
	}
	return out, nil
}

// detectionOrder is the fallback probe order when path heuristics do not
// pick an adapter.
var detectionOrder = []AdapterID{
	AdapterCodexCLI, AdapterClaudeCode, AdapterOpenCode,
	AdapterCursor, AdapterGeminiCLI, AdapterOpenClaw,
}

// DetectAdapter picks an adapter for a session artifact: path heuristics
// first, then conversion probes in a fixed order. The converted output of
// the winning adapter is returned so callers do not convert twice.
func DetectAdapter(path string, input []byte) (AdapterID, []byte, error) {
	if id, ok := preferredAdapterForPath(path); ok {
		if out, err := ConvertWithAdapter(id, input); err == nil {
			return id, out, nil
		}
	}
	for _, id := range detectionOrder {
		if out, err := ConvertWithAdapter(id, input); err == nil {
			return id, out, nil
		}
	}
	return "", nil, errors.New(errors.AdapterError, fmt.Sprintf("unable to detect adapter for %s", path))
}

func preferredAdapterForPath(path string) (AdapterID, bool) {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, ".codex/sessions") || strings.HasSuffix(lower, "history.jsonl"):
		return AdapterCodexCLI, true
	case strings.Contains(lower, ".claude/projects"):
		return AdapterClaudeCode, true
	case strings.Contains(lower, "opencode"):
		return AdapterOpenCode, true
	case strings.Contains(lower, "cursor"):
		return AdapterCursor, true
	case strings.Contains(lower, "gemini"):
		return AdapterGeminiCLI, true
	case strings.Contains(lower, "openclaw"):
		return AdapterOpenClaw, true
	}
	return "", false
}

// ConformanceIssue flags one output row that violates the tape contract.
// Line is 1-based.
type ConformanceIssue struct {
	Line   int    `json:"line"`
	Detail string `json:"detail"`
}

// ConformanceReport summarizes a sample conversion checked against the
// tape contract.
type ConformanceReport struct {
	Adapter    AdapterID          `json:"adapter"`
	EventCount int                `json:"event_count"`
	Coverage   Coverage           `json:"coverage"`
	Issues     []ConformanceIssue `json:"issues"`
}

// RunConformance converts a sample artifact with the given adapter and
// validates every output row against the tape contract. Coverage comes
// from the first meta event the adapter emits, falling back to the
// registry grades when the meta is absent or unparsable.
func RunConformance(id AdapterID, input []byte) (*ConformanceReport, error) {
	normalized, err := ConvertWithAdapter(id, input)
	if err != nil {
		return nil, err
	}

	report := &ConformanceReport{Adapter: id, Issues: []ConformanceIssue{}}
	var sawCoverage bool

	for idx, line := range strings.Split(string(normalized), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		report.EventCount++

		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			report.Issues = append(report.Issues, ConformanceIssue{Line: idx + 1, Detail: "row is not an object"})
			continue
		}
		if !sawCoverage {
			if kind, _ := row["k"].(string); kind == KindMeta {
				if coverage, ok := metaCoverage(row); ok {
					report.Coverage = coverage
					sawCoverage = true
				}
			}
		}
		validateContractRow(idx+1, row, &report.Issues)
	}

	if !sawCoverage {
		if descriptor, ok := DescriptorFor(id); ok {
			report.Coverage = descriptor.Coverage
		}
	}
	return report, nil
}

func metaCoverage(row map[string]any) (Coverage, bool) {
	read, okRead := row["coverage.read"].(string)
	edit, okEdit := row["coverage.edit"].(string)
	tool, okTool := row["coverage.tool"].(string)
	if !okRead || !okEdit || !okTool {
		return Coverage{}, false
	}
	if !ValidCoverageGrade(read) || !ValidCoverageGrade(edit) || !ValidCoverageGrade(tool) {
		return Coverage{}, false
	}
	return Coverage{Read: read, Edit: edit, Tool: tool}, true
}

func validateContractRow(line int, row map[string]any, issues *[]ConformanceIssue) {
	flag := func(detail string) {
		*issues = append(*issues, ConformanceIssue{Line: line, Detail: detail})
	}
	isString := func(key string) bool {
		_, ok := row[key].(string)
		return ok
	}

	if !isString("t") {
		flag("missing string field `t`")
	}
	if source, ok := row["source"].(map[string]any); ok {
		if _, ok := source["harness"].(string); !ok {
			flag("missing string field `source.harness`")
		}
		if sessionID, present := source["session_id"]; present {
			if _, ok := sessionID.(string); !ok {
				flag("field `source.session_id` must be a string when present")
			}
		}
	} else {
		flag("missing object field `source`")
	}

	kind, _ := row["k"].(string)
	if kind == "" {
		flag("missing string field `k`")
		return
	}

	switch kind {
	case KindMeta:
		for _, field := range []string{"coverage.read", "coverage.edit", "coverage.tool"} {
			grade, ok := row[field].(string)
			if !ok {
				flag(fmt.Sprintf("meta missing string field `%s`", field))
			} else if !ValidCoverageGrade(grade) {
				flag(fmt.Sprintf("meta field `%s` must be one of `full|partial|none`", field))
			}
		}
	case KindMsgIn, KindMsgOut:
	case KindSpanLink:
		if !isString("from_file") {
			flag("span.link missing string field `from_file`")
		}
		if _, ok := row["from_range"]; !ok {
			flag("span.link missing field `from_range`")
		}
		if !isString("to_file") {
			flag("span.link missing string field `to_file`")
		}
		if _, ok := row["to_range"]; !ok {
			flag("span.link missing field `to_range`")
		}
	case KindToolCall:
		if !isString("tool") {
			flag("tool.call missing string field `tool`")
		}
		if _, ok := row["args"]; !ok {
			flag("tool.call missing field `args`")
		}
	case KindToolResult:
		if !isString("tool") {
			flag("tool.result missing string field `tool`")
		}
	case KindCodeRead:
		if !isString("file") {
			flag("code.read missing string field `file`")
		}
		if _, ok := row["range"]; !ok {
			flag("code.read missing field `range`")
		}
	case KindCodeEdit:
		if !isString("file") {
			flag("code.edit missing string field `file`")
		}
	default:
		flag(fmt.Sprintf("unknown event kind `%s`", kind))
	}
}
