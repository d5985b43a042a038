package index

import (
	"fmt"
	"time"
)

// TapeRecord is one row of the ingest registry.
type TapeRecord struct {
	TapeID     string
	EventCount int64
	IngestedAt string
}

// HasTape reports whether a tape has already been ingested.
func (s *Store) HasTape(tapeID string) (bool, error) {
	var n int
	err := s.q.QueryRow(
		"SELECT COUNT(*) FROM tapes WHERE tape_id = ?", tapeID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check tape registry: %w", err)
	}
	return n > 0, nil
}

// RecordTape registers a tape as ingested.
func (s *Store) RecordTape(tapeID string, eventCount int) error {
	_, err := s.q.Exec(`
		INSERT OR REPLACE INTO tapes (tape_id, event_count, ingested_at)
		VALUES (?, ?, ?)
	`, tapeID, eventCount, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record tape: %w", err)
	}
	return nil
}

// ListTapeRecords returns every registered tape.
func (s *Store) ListTapeRecords() ([]TapeRecord, error) {
	rows, err := s.q.Query(
		"SELECT tape_id, event_count, ingested_at FROM tapes ORDER BY tape_id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tapes: %w", err)
	}
	defer rows.Close()

	var records []TapeRecord
	for rows.Next() {
		var r TapeRecord
		if err := rows.Scan(&r.TapeID, &r.EventCount, &r.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tape record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteTapeRecords drops registry rows for the given tapes.
func (s *Store) DeleteTapeRecords(tapeIDs []string) error {
	if len(tapeIDs) == 0 {
		return nil
	}
	_, err := s.q.Exec(
		"DELETE FROM tapes WHERE tape_id IN ("+placeholders(len(tapeIDs))+")",
		stringArgs(tapeIDs)...,
	)
	if err != nil {
		return fmt.Errorf("failed to delete tape records: %w", err)
	}
	return nil
}

// ReferencedTapeIDs returns the tape ids still referenced by evidence or
// tombstones. Tapes outside this set are garbage collection candidates.
func (s *Store) ReferencedTapeIDs() (map[string]struct{}, error) {
	rows, err := s.q.Query(`
		SELECT DISTINCT tape_id FROM evidence
		UNION
		SELECT DISTINCT tape_id FROM tombstones
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query referenced tapes: %w", err)
	}
	defer rows.Close()

	referenced := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tape id: %w", err)
		}
		referenced[id] = struct{}{}
	}
	return referenced, rows.Err()
}
