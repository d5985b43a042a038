package index

import (
	"fmt"
)

// EvidenceKind classifies how a tape event touched an anchor.
type EvidenceKind string

const (
	KindRead    EvidenceKind = "read"
	KindEdit    EvidenceKind = "edit"
	KindTool    EvidenceKind = "tool"
	KindMessage EvidenceKind = "message"
)

// EvidenceFragment records that one tape event touched one anchor.
type EvidenceFragment struct {
	Anchor      string
	TapeID      string
	EventOffset int64
	Kind        EvidenceKind
	FilePath    string
	Timestamp   string
}

// PutFragment stores a fragment. Storing the exact same fragment twice is a
// no-op; the return value reports whether a row was actually written.
func (s *Store) PutFragment(f EvidenceFragment) (bool, error) {
	res, err := s.q.Exec(`
		INSERT OR IGNORE INTO evidence (
			anchor, tape_id, event_offset, kind, file_path, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		f.Anchor,
		f.TapeID,
		f.EventOffset,
		string(f.Kind),
		f.FilePath,
		f.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("failed to store evidence: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// Lookup returns the fragments indexed under any of the given anchors.
// Unknown anchors simply contribute nothing.
func (s *Store) Lookup(anchors []string) ([]EvidenceFragment, error) {
	if len(anchors) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(`
		SELECT anchor, tape_id, event_offset, kind, file_path, timestamp
		FROM evidence
		WHERE anchor IN (`+placeholders(len(anchors))+`)
		ORDER BY tape_id ASC, event_offset ASC
	`, stringArgs(anchors)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var fragments []EvidenceFragment
	for rows.Next() {
		var f EvidenceFragment
		var kind string
		if err := rows.Scan(
			&f.Anchor,
			&f.TapeID,
			&f.EventOffset,
			&kind,
			&f.FilePath,
			&f.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		f.Kind = EvidenceKind(kind)
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

// CountTouches counts the evidence rows a tape contributed for a file.
func (s *Store) CountTouches(tapeID, filePath string) (int, error) {
	var n int
	err := s.q.QueryRow(`
		SELECT COUNT(*) FROM evidence
		WHERE tape_id = ? AND file_path = ?
	`, tapeID, filePath).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count touches: %w", err)
	}
	return n, nil
}
