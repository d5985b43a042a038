package ingest

import (
	"log/slog"
	"os"

	"engram/internal/tape"
)

// IngestIssue records a source file or single event that could not be
// ingested. File-level issues have no offset.
type IngestIssue struct {
	Path    string `json:"path,omitempty"`
	Adapter string `json:"adapter,omitempty"`
	Offset  *int64 `json:"offset,omitempty"`
	Detail  string `json:"detail"`
}

// Summary aggregates one bulk ingest run.
type Summary struct {
	Status           string `json:"status"`
	ScannedInputs    int    `json:"scanned_inputs"`
	Imported         int    `json:"imported"`
	SkippedUnchanged int    `json:"skipped_unchanged"`
	Failed           int    `json:"failed"`
	Stats
	Issues []IngestIssue `json:"issues"`
}

// Ingester drives bulk ingestion over resolved source files.
type Ingester struct {
	pipeline *Pipeline
	blobs    *tape.BlobStore
	logger   *slog.Logger
}

// NewIngester wires a pipeline and a blob store into a bulk ingester.
func NewIngester(pipeline *Pipeline, blobs *tape.BlobStore, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{pipeline: pipeline, blobs: blobs, logger: logger}
}

// IngestSources converts and indexes every candidate, skipping files whose
// content hash matches the cursor. Per-file failures are recorded and do
// not stop the run; storage failures do. The cursor is saved once the loop
// finishes.
func (in *Ingester) IngestSources(candidates []Candidate, statePath string) (*Summary, error) {
	state, err := LoadState(statePath)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Issues: []IngestIssue{}}
	for _, candidate := range candidates {
		summary.ScannedInputs++
		if err := in.ingestCandidate(candidate, state, summary); err != nil {
			return nil, err
		}
	}

	if err := SaveState(statePath, state); err != nil {
		return nil, err
	}

	summary.Status = "ok"
	if summary.Failed > 0 {
		summary.Status = "partial"
	}
	in.logger.Info("ingest run finished",
		"scanned", summary.ScannedInputs,
		"imported", summary.Imported,
		"skipped_unchanged", summary.SkippedUnchanged,
		"failed", summary.Failed)
	return summary, nil
}

func (in *Ingester) ingestCandidate(candidate Candidate, state *State, summary *Summary) error {
	fail := func(adapter tape.AdapterID, cause error) {
		summary.Failed++
		summary.Issues = append(summary.Issues, IngestIssue{
			Path:    candidate.Path,
			Adapter: adapterLabel(adapter),
			Detail:  cause.Error(),
		})
		in.logger.Warn("skipping source", "path", candidate.Path, "error", cause)
	}

	raw, err := os.ReadFile(candidate.Path)
	if err != nil {
		fail(candidate.Adapter, err)
		return nil
	}
	hash := inputHash(raw)

	// Auto sources detect before the cursor check because the cursor is
	// keyed by the resolved adapter. Detection already converts, so the
	// output is reused below.
	adapter := candidate.Adapter
	var normalized []byte
	if adapter == "" {
		detected, output, err := tape.DetectAdapter(candidate.Path, raw)
		if err != nil {
			fail(adapter, err)
			return nil
		}
		adapter = detected
		normalized = output
	}

	key := StateKey(adapter, candidate.Path)
	if prev, ok := state.Files[key]; ok && prev.InputHash == hash {
		summary.SkippedUnchanged++
		return nil
	}

	if normalized == nil {
		normalized, err = tape.ConvertWithAdapter(adapter, raw)
		if err != nil {
			fail(adapter, err)
			return nil
		}
	}

	events, parseIssues, err := tape.ParseEvents(normalized)
	if err != nil {
		fail(adapter, err)
		return nil
	}
	for _, issue := range parseIssues {
		offset := int64(issue.Line - 1)
		summary.Issues = append(summary.Issues, IngestIssue{
			Path:    candidate.Path,
			Adapter: string(adapter),
			Offset:  &offset,
			Detail:  issue.Detail,
		})
	}

	tapeID := tape.TapeID(normalized)
	if _, err := in.blobs.Write(tapeID, normalized); err != nil {
		return err
	}

	result, err := in.pipeline.IngestTape(tapeID, events)
	if err != nil {
		return err
	}
	if result.AlreadyIndexed {
		summary.SkippedUnchanged++
	} else {
		summary.Imported++
		summary.Stats.add(result.Stats)
	}
	for _, issue := range result.Issues {
		offset := issue.Offset
		summary.Issues = append(summary.Issues, IngestIssue{
			Path:    candidate.Path,
			Adapter: string(adapter),
			Offset:  &offset,
			Detail:  issue.Detail,
		})
	}

	state.Files[key] = FileState{InputHash: hash, TapeID: tapeID, IngestedAt: nowTimestamp()}
	return nil
}

func adapterLabel(adapter tape.AdapterID) string {
	if adapter == "" {
		return tape.ChoiceAuto
	}
	return string(adapter)
}
