// Package ingest turns normalized tapes into index state. The pipeline
// maps tape events to evidence fragments, lineage edges, tombstones, and
// chain transitions; the bulk path resolves configured sources and keeps a
// cursor so unchanged inputs are not converted twice.
package ingest

import (
	"database/sql"
	"log/slog"

	"engram/internal/anchor"
	"engram/internal/index"
	"engram/internal/tape"
)

// Stats counts the index rows one ingest wrote.
type Stats struct {
	FragmentsWritten  int `json:"fragments_written"`
	EdgesWritten      int `json:"edges_written"`
	TombstonesWritten int `json:"tombstones_written"`
}

func (s *Stats) add(other Stats) {
	s.FragmentsWritten += other.FragmentsWritten
	s.EdgesWritten += other.EdgesWritten
	s.TombstonesWritten += other.TombstonesWritten
}

// EventIssue flags one event that could not be indexed. Offset is the
// 0-based tape line of the event.
type EventIssue struct {
	Offset int64  `json:"offset"`
	Detail string `json:"detail"`
}

// Result reports one tape's ingest.
type Result struct {
	Stats
	AlreadyIndexed bool
	Issues         []EventIssue
}

// Pipeline writes tape events into the index.
type Pipeline struct {
	db            *index.DB
	logger        *slog.Logger
	linkThreshold float64
}

// NewPipeline creates a pipeline over an open index.
func NewPipeline(db *index.DB, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{db: db, logger: logger, linkThreshold: index.LinkThresholdDefault}
}

// SetLinkThreshold overrides the default confidence floor used to classify
// edit edges.
func (p *Pipeline) SetLinkThreshold(threshold float64) {
	p.linkThreshold = threshold
}

// IngestTape indexes a tape inside one transaction. A tape id the registry
// already holds is a no-op. Events that cannot be indexed are skipped with
// an issue; a storage error rolls the whole tape back.
func (p *Pipeline) IngestTape(tapeID string, events []tape.Event) (*Result, error) {
	result := &Result{}
	err := p.db.WithTx(func(tx *sql.Tx) error {
		store := index.NewStore(tx)

		has, err := store.HasTape(tapeID)
		if err != nil {
			return err
		}
		if has {
			result.AlreadyIndexed = true
			return nil
		}

		for _, ev := range events {
			if err := p.indexEvent(store, tapeID, ev, result); err != nil {
				return err
			}
		}
		return store.RecordTape(tapeID, len(events))
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyIndexed {
		p.logger.Debug("tape already indexed", "tape_id", tapeID)
	} else {
		p.logger.Debug("ingested tape", "tape_id", tapeID,
			"fragments", result.FragmentsWritten,
			"edges", result.EdgesWritten,
			"tombstones", result.TombstonesWritten,
			"issues", len(result.Issues))
	}
	return result, nil
}

// indexEvent maps one event to index rows. Conversational and tool events
// leave no rows; they surface later through transcript windows.
func (p *Pipeline) indexEvent(store *index.Store, tapeID string, ev tape.Event, result *Result) error {
	switch ev.Kind {
	case tape.KindCodeRead:
		return p.indexRead(store, tapeID, ev, result)
	case tape.KindCodeEdit:
		return p.indexEdit(store, tapeID, ev, result)
	case tape.KindSpanLink:
		return p.indexSpanLink(store, ev, result)
	}
	return nil
}

func (p *Pipeline) indexRead(store *index.Store, tapeID string, ev tape.Event, result *Result) error {
	if ev.File == "" {
		result.Issues = append(result.Issues, EventIssue{Offset: ev.Offset, Detail: "code.read missing file"})
		return nil
	}
	fragment := index.EvidenceFragment{
		TapeID:      tapeID,
		EventOffset: ev.Offset,
		Kind:        index.KindRead,
		FilePath:    ev.File,
		Timestamp:   ev.Time,
	}
	for _, a := range ev.AnchorHashes {
		fragment.Anchor = a
		wrote, err := store.PutFragment(fragment)
		if err != nil {
			return err
		}
		if wrote {
			result.FragmentsWritten++
		}
	}
	return nil
}

func (p *Pipeline) indexEdit(store *index.Store, tapeID string, ev tape.Event, result *Result) error {
	if ev.File == "" {
		result.Issues = append(result.Issues, EventIssue{Offset: ev.Offset, Detail: "code.edit missing file"})
		return nil
	}

	reinserted := false
	if ev.AfterHash != "" {
		wrote, err := store.PutFragment(index.EvidenceFragment{
			Anchor:      ev.AfterHash,
			TapeID:      tapeID,
			EventOffset: ev.Offset,
			Kind:        index.KindEdit,
			FilePath:    ev.File,
			Timestamp:   ev.Time,
		})
		if err != nil {
			return err
		}
		if wrote {
			result.FragmentsWritten++
		}

		// Content coming back after a deletion rejoins its old chain
		// instead of rooting a new one.
		chainID, found, err := store.FindChainForReinsertion([]string{ev.AfterHash})
		if err != nil {
			return err
		}
		if found {
			if err := store.SetChainState(chainID, index.ChainReinserted); err != nil {
				return err
			}
			if err := store.AddChainMember(chainID, ev.AfterHash); err != nil {
				return err
			}
			reinserted = true
		}
	}

	switch {
	case ev.BeforeHash != "" && ev.AfterHash != "":
		confidence := editConfidence(ev.BeforeHash, ev.AfterHash, p.linkThreshold)
		_, err := store.PutEdge(index.Edge{
			FromAnchor:  ev.BeforeHash,
			ToAnchor:    ev.AfterHash,
			Confidence:  confidence,
			Delta:       index.DeltaSame,
			Cardinality: index.CardOneToOne,
		}, p.linkThreshold)
		if err != nil {
			return err
		}
		result.EdgesWritten++
		if !reinserted {
			if err := p.trackEditChain(store, ev.BeforeHash, ev.AfterHash, confidence); err != nil {
				return err
			}
		}

	case ev.BeforeHash != "" && ev.AfterHash == "":
		rangeAtDeletion := index.FileRange{}
		if ev.BeforeRange != nil {
			rangeAtDeletion = index.FileRange{Start: ev.BeforeRange.Start, End: ev.BeforeRange.End}
		} else if ev.AfterRange != nil {
			rangeAtDeletion = index.FileRange{Start: ev.AfterRange.Start, End: ev.AfterRange.End}
		}
		err := store.PutTombstone(index.Tombstone{
			AnchorHashes:    []string{ev.BeforeHash},
			TapeID:          tapeID,
			EventOffset:     ev.Offset,
			FilePath:        ev.File,
			RangeAtDeletion: rangeAtDeletion,
			Timestamp:       ev.Time,
		})
		if err != nil {
			return err
		}
		result.TombstonesWritten++
		if err := p.tombstoneChain(store, ev.BeforeHash); err != nil {
			return err
		}

	case ev.BeforeHash == "" && ev.AfterHash != "" && !reinserted:
		// First sighting of a span: root a chain unless one already
		// tracks this anchor.
		if _, _, ok, err := store.ChainForAnchor(ev.AfterHash); err != nil {
			return err
		} else if !ok {
			if _, err := store.CreateChain(index.ChainNewRoot, []string{ev.AfterHash}); err != nil {
				return err
			}
		}
	}
	return nil
}

// trackEditChain advances or roots the succession chain for an edit edge.
// A strong edge extends the predecessor's chain; a weak one roots a fresh
// chain at the successor.
func (p *Pipeline) trackEditChain(store *index.Store, beforeHash, afterHash string, confidence float64) error {
	if index.AdvancesChain(confidence) {
		chainID, _, ok, err := store.ChainForAnchor(beforeHash)
		if err != nil {
			return err
		}
		if !ok {
			_, err := store.CreateChain(index.ChainLinked, []string{beforeHash, afterHash})
			return err
		}
		if err := store.AddChainMember(chainID, afterHash); err != nil {
			return err
		}
		return store.SetChainState(chainID, index.ChainLinked)
	}

	_, _, ok, err := store.ChainForAnchor(afterHash)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := store.CreateChain(index.ChainNewRoot, []string{afterHash}); err != nil {
			return err
		}
	}
	return nil
}

// tombstoneChain marks the chain holding a deleted anchor. A deletion of
// an untracked anchor still leaves a tombstoned chain so a later
// reinsertion can find it.
func (p *Pipeline) tombstoneChain(store *index.Store, beforeHash string) error {
	chainID, _, ok, err := store.ChainForAnchor(beforeHash)
	if err != nil {
		return err
	}
	if !ok {
		_, err := store.CreateChain(index.ChainTombstoned, []string{beforeHash})
		return err
	}
	return store.SetChainState(chainID, index.ChainTombstoned)
}

func (p *Pipeline) indexSpanLink(store *index.Store, ev tape.Event, result *Result) error {
	if ev.FromFile == "" || ev.ToFile == "" || ev.FromRange == nil || ev.ToRange == nil {
		result.Issues = append(result.Issues, EventIssue{Offset: ev.Offset, Detail: "span.link missing endpoint fields"})
		return nil
	}
	from := index.SpanAnchor(ev.FromFile, ev.FromRange.Start, ev.FromRange.End)
	to := index.SpanAnchor(ev.ToFile, ev.ToRange.Start, ev.ToRange.End)
	_, err := store.PutEdge(index.Edge{
		FromAnchor:  from,
		ToAnchor:    to,
		Confidence:  0.0,
		Delta:       index.DeltaMoved,
		Cardinality: index.CardOneToOne,
		AgentLink:   true,
		Note:        ev.Note,
	}, p.linkThreshold)
	if err != nil {
		return err
	}
	result.EdgesWritten++
	return nil
}

// editConfidence scores a before/after pair. Fingerprints compare by
// feature overlap; strings that are not fingerprints compare by equality,
// and an unequal pair bottoms out at the link threshold.
func editConfidence(beforeHash, afterHash string, linkThreshold float64) float64 {
	if sim, ok := anchor.Similarity(beforeHash, afterHash); ok {
		return sim
	}
	if beforeHash == afterHash {
		return 1.0
	}
	return linkThreshold
}
