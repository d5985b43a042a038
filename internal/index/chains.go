package index

import (
	"database/sql"
	"fmt"
	"time"

	"engram/internal/anchor"
)

// ChainState is the lifecycle state of a span chain.
type ChainState string

const (
	// ChainNewRoot marks a chain whose span has no known predecessor.
	ChainNewRoot ChainState = "new_root"
	// ChainLinked marks a chain extended by at least one edit edge.
	ChainLinked ChainState = "linked"
	// ChainTombstoned marks a chain whose span was deleted.
	ChainTombstoned ChainState = "tombstoned"
	// ChainReinserted marks a tombstoned chain whose content reappeared.
	ChainReinserted ChainState = "reinserted"
)

// CreateChain creates a chain in the given state with the given member
// anchors and returns its id.
func (s *Store) CreateChain(state ChainState, anchors []string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.q.Exec(`
		INSERT INTO chains (state, created_at, updated_at) VALUES (?, ?, ?)
	`, string(state), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create chain: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read chain id: %w", err)
	}
	for _, a := range anchors {
		if err := s.AddChainMember(id, a); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// SetChainState transitions a chain to a new state.
func (s *Store) SetChainState(chainID int64, state ChainState) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.q.Exec(`
		UPDATE chains SET state = ?, updated_at = ? WHERE id = ?
	`, string(state), now, chainID)
	if err != nil {
		return fmt.Errorf("failed to update chain state: %w", err)
	}
	return nil
}

// AddChainMember joins an anchor to a chain. Re-adding is a no-op.
func (s *Store) AddChainMember(chainID int64, a string) error {
	_, err := s.q.Exec(`
		INSERT OR IGNORE INTO chain_members (chain_id, anchor) VALUES (?, ?)
	`, chainID, a)
	if err != nil {
		return fmt.Errorf("failed to add chain member: %w", err)
	}
	return nil
}

// ChainForAnchor returns the most recent chain containing the anchor.
func (s *Store) ChainForAnchor(a string) (int64, ChainState, bool, error) {
	var id int64
	var state string
	err := s.q.QueryRow(`
		SELECT c.id, c.state
		FROM chains c
		JOIN chain_members m ON m.chain_id = c.id
		WHERE m.anchor = ?
		ORDER BY c.id DESC
		LIMIT 1
	`, a).Scan(&id, &state)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("failed to query chain: %w", err)
	}
	return id, ChainState(state), true, nil
}

// FindChainForReinsertion looks for a tombstoned chain whose members match
// any of the given anchors closely enough to count as the same content.
// Exact anchor equality always matches; otherwise fingerprint similarity
// must reach the reinsertion threshold. The most recently tombstoned chain
// wins.
func (s *Store) FindChainForReinsertion(anchors []string) (int64, bool, error) {
	if len(anchors) == 0 {
		return 0, false, nil
	}
	rows, err := s.q.Query(`
		SELECT c.id, m.anchor
		FROM chains c
		JOIN chain_members m ON m.chain_id = c.id
		WHERE c.state = ?
		ORDER BY c.id DESC
	`, string(ChainTombstoned))
	if err != nil {
		return 0, false, fmt.Errorf("failed to query tombstoned chains: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var member string
		if err := rows.Scan(&id, &member); err != nil {
			return 0, false, fmt.Errorf("failed to scan chain member: %w", err)
		}
		for _, a := range anchors {
			if a == member {
				return id, true, nil
			}
			if sim, ok := anchor.Similarity(a, member); ok && IsIdenticalReinsertion(sim) {
				return id, true, nil
			}
		}
	}
	return 0, false, rows.Err()
}
