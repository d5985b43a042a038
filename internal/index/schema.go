package index

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}

		if err := createEvidenceTable(tx); err != nil {
			return err
		}
		if err := createEdgesTable(tx); err != nil {
			return err
		}
		if err := createTombstonesTable(tx); err != nil {
			return err
		}
		if err := createChainTables(tx); err != nil {
			return err
		}
		if err := createTapesTable(tx); err != nil {
			return err
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Debug("index schema initialized", "version", currentSchemaVersion)

		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("index schema is up to date", "version", version)
		return nil
	}

	db.logger.Info("running index migrations",
		"from_version", version,
		"to_version", currentSchemaVersion)

	// Run migrations sequentially as the schema evolves.

	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		// Table doesn't exist, this is a new database
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM schema_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// createSchemaVersionTable creates the schema_version tracking table
func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createEvidenceTable creates the evidence table. The unique index over the
// full fragment identity makes re-ingest of identical rows a no-op.
func createEvidenceTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS evidence (
			anchor TEXT NOT NULL,
			tape_id TEXT NOT NULL,
			event_offset INTEGER NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('read', 'edit', 'tool', 'message')),
			file_path TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create evidence table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_evidence_anchor ON evidence(anchor)",
		"CREATE INDEX IF NOT EXISTS idx_evidence_tape_file ON evidence(tape_id, file_path)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_evidence_identity ON evidence(anchor, tape_id, event_offset, kind, file_path, timestamp)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create evidence index: %w", err)
		}
	}

	return nil
}

// createEdgesTable creates the edges table. stored_class is assigned at
// write time with the link threshold then in force.
func createEdgesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_anchor TEXT NOT NULL,
			to_anchor TEXT NOT NULL,
			confidence REAL NOT NULL CHECK(confidence >= 0.0 AND confidence <= 1.0),
			location_delta TEXT NOT NULL CHECK(location_delta IN ('same', 'adjacent', 'moved', 'absent')),
			cardinality TEXT NOT NULL CHECK(cardinality IN ('1:1', '1:N', 'N:1')),
			agent_link INTEGER NOT NULL DEFAULT 0,
			note TEXT,
			stored_class TEXT NOT NULL CHECK(stored_class IN ('lineage', 'location_only'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create edges table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_edges_from_anchor ON edges(from_anchor)",
		"CREATE INDEX IF NOT EXISTS idx_edges_to_anchor ON edges(to_anchor)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create edges index: %w", err)
		}
	}

	return nil
}

// createTombstonesTable creates the tombstones table, one row per anchor
// hash of the deleted span.
func createTombstonesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS tombstones (
			anchor TEXT NOT NULL,
			tape_id TEXT NOT NULL,
			event_offset INTEGER NOT NULL,
			file_path TEXT NOT NULL,
			range_start INTEGER NOT NULL,
			range_end INTEGER NOT NULL,
			timestamp TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tombstones table: %w", err)
	}

	if _, err := tx.Exec(
		"CREATE INDEX IF NOT EXISTS idx_tombstones_anchor ON tombstones(anchor)",
	); err != nil {
		return fmt.Errorf("failed to create tombstones index: %w", err)
	}

	return nil
}

// createChainTables creates the chains and chain_members tables that track
// span lifecycles across edits, deletions, and reinsertions.
func createChainTables(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS chains (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			state TEXT NOT NULL CHECK(state IN ('new_root', 'linked', 'tombstoned', 'reinserted')),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create chains table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS chain_members (
			chain_id INTEGER NOT NULL,
			anchor TEXT NOT NULL,

			PRIMARY KEY (chain_id, anchor),
			FOREIGN KEY (chain_id) REFERENCES chains(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create chain_members table: %w", err)
	}

	if _, err := tx.Exec(
		"CREATE INDEX IF NOT EXISTS idx_chain_members_anchor ON chain_members(anchor)",
	); err != nil {
		return fmt.Errorf("failed to create chain_members index: %w", err)
	}

	return nil
}

// createTapesTable creates the ingest registry backing tape idempotency.
func createTapesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS tapes (
			tape_id TEXT PRIMARY KEY,
			event_count INTEGER NOT NULL,
			ingested_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create tapes table: %w", err)
	}
	return nil
}
