package index

import (
	"database/sql"
	"fmt"
)

const (
	// LinkThresholdDefault is the minimum write-time confidence for an edge
	// to be stored as lineage rather than location_only.
	LinkThresholdDefault = 0.30
	// ReinsertionThreshold is the minimum fingerprint similarity for
	// reattaching reappearing content to a tombstoned chain.
	ReinsertionThreshold = 0.90
)

// LocationDelta describes how a span's location changed across an edge.
type LocationDelta string

const (
	DeltaSame     LocationDelta = "same"
	DeltaAdjacent LocationDelta = "adjacent"
	DeltaMoved    LocationDelta = "moved"
	DeltaAbsent   LocationDelta = "absent"
)

// Cardinality describes the span fan shape of an edge.
type Cardinality string

const (
	CardOneToOne  Cardinality = "1:1"
	CardOneToMany Cardinality = "1:N"
	CardManyToOne Cardinality = "N:1"
)

// EdgeClass is the stored classification of an edge.
type EdgeClass string

const (
	// ClassLineage edges assert content flow and are traversable.
	ClassLineage EdgeClass = "lineage"
	// ClassLocationOnly edges record co-location without content overlap.
	// They are kept for forensics but never traversed by default.
	ClassLocationOnly EdgeClass = "location_only"
)

// FileRange is a 1-based inclusive line range.
type FileRange struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Edge is a lineage edge as produced by ingest, predecessor to successor.
type Edge struct {
	FromAnchor  string
	ToAnchor    string
	Confidence  float64
	Delta       LocationDelta
	Cardinality Cardinality
	AgentLink   bool
	Note        string
}

// StoredEdge is an edge row as persisted, with its id and write-time class.
type StoredEdge struct {
	ID    int64
	Edge
	Class EdgeClass
}

// Tombstone records the deletion of a span. AnchorHashes carries every
// anchor the span was known by; each gets its own row.
type Tombstone struct {
	AnchorHashes    []string
	TapeID          string
	EventOffset     int64
	FilePath        string
	RangeAtDeletion FileRange
	Timestamp       string
}

// TombstoneRow is one stored tombstone row.
type TombstoneRow struct {
	Anchor      string    `json:"anchor"`
	TapeID      string    `json:"tape_id"`
	EventOffset int64     `json:"event_offset"`
	FilePath    string    `json:"file_path"`
	Range       FileRange `json:"range"`
	Timestamp   string    `json:"timestamp"`
}

// SpanAnchor encodes a file location as an anchor string.
func SpanAnchor(file string, start, end uint32) string {
	return fmt.Sprintf("span:%s:%d-%d", file, start, end)
}

// StoredClassFor classifies an edge at write time. Agent-asserted links are
// always lineage; anything else must clear the link threshold. Location
// evidence alone never yields a lineage edge.
func StoredClassFor(agentLink bool, confidence, linkThreshold float64) EdgeClass {
	if agentLink || confidence >= linkThreshold {
		return ClassLineage
	}
	return ClassLocationOnly
}

// InDefaultTraversal reports whether an edge with the given attributes
// participates in default explain traversal.
func InDefaultTraversal(agentLink bool, confidence, minConfidence float64) bool {
	return agentLink || confidence >= minConfidence
}

// AdvancesChain reports whether an edit edge carries a strong enough
// signal to extend the predecessor's chain instead of rooting a new one.
func AdvancesChain(confidence float64) bool {
	return confidence >= ReinsertionThreshold
}

// IsIdenticalReinsertion reports whether reappearing content is close
// enough to a tombstoned span to count as the same logical span.
func IsIdenticalReinsertion(similarity float64) bool {
	return similarity >= ReinsertionThreshold
}

// PutEdge stores an edge, classifying it with the given link threshold,
// and returns the new row id.
func (s *Store) PutEdge(e Edge, linkThreshold float64) (int64, error) {
	var note interface{}
	if e.Note != "" {
		note = e.Note
	}
	class := StoredClassFor(e.AgentLink, e.Confidence, linkThreshold)

	res, err := s.q.Exec(`
		INSERT INTO edges (
			from_anchor, to_anchor, confidence, location_delta,
			cardinality, agent_link, note, stored_class
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.FromAnchor,
		e.ToAnchor,
		e.Confidence,
		string(e.Delta),
		string(e.Cardinality),
		boolToInt(e.AgentLink),
		note,
		string(class),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to store edge: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read edge id: %w", err)
	}
	return id, nil
}

// NeighborsBackward returns the stored edges arriving at the given anchor,
// highest confidence first. Lineage is traversed from a span toward its
// predecessors, so the query side follows to_anchor.
func (s *Store) NeighborsBackward(anchor string) ([]StoredEdge, error) {
	rows, err := s.q.Query(`
		SELECT id, from_anchor, to_anchor, confidence, location_delta,
		       cardinality, agent_link, note, stored_class
		FROM edges
		WHERE to_anchor = ?
		ORDER BY confidence DESC, id ASC
	`, anchor)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	return scanStoredEdges(rows)
}

func scanStoredEdges(rows *sql.Rows) ([]StoredEdge, error) {
	var edges []StoredEdge
	for rows.Next() {
		var e StoredEdge
		var agentLink int
		var note sql.NullString
		var delta, card, class string
		if err := rows.Scan(
			&e.ID,
			&e.FromAnchor,
			&e.ToAnchor,
			&e.Confidence,
			&delta,
			&card,
			&agentLink,
			&note,
			&class,
		); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Delta = LocationDelta(delta)
		e.Cardinality = Cardinality(card)
		e.AgentLink = agentLink != 0
		e.Note = note.String
		e.Class = EdgeClass(class)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// PutTombstone stores one tombstone row per anchor hash.
func (s *Store) PutTombstone(t Tombstone) error {
	for _, a := range t.AnchorHashes {
		_, err := s.q.Exec(`
			INSERT INTO tombstones (
				anchor, tape_id, event_offset, file_path,
				range_start, range_end, timestamp
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			a,
			t.TapeID,
			t.EventOffset,
			t.FilePath,
			t.RangeAtDeletion.Start,
			t.RangeAtDeletion.End,
			t.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to store tombstone: %w", err)
		}
	}
	return nil
}

// TombstonesFor returns the tombstone rows for any of the given anchors,
// oldest first.
func (s *Store) TombstonesFor(anchors []string) ([]TombstoneRow, error) {
	if len(anchors) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(`
		SELECT anchor, tape_id, event_offset, file_path,
		       range_start, range_end, timestamp
		FROM tombstones
		WHERE anchor IN (`+placeholders(len(anchors))+`)
		ORDER BY timestamp ASC, event_offset ASC
	`, stringArgs(anchors)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tombstones: %w", err)
	}
	defer rows.Close()

	var result []TombstoneRow
	for rows.Next() {
		var t TombstoneRow
		if err := rows.Scan(
			&t.Anchor,
			&t.TapeID,
			&t.EventOffset,
			&t.FilePath,
			&t.Range.Start,
			&t.Range.End,
			&t.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
