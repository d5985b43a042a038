package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"engram/internal/errors"
	"engram/internal/fsutil"
	"engram/internal/tape"
)

// StateFileName is the ingest cursor file kept under the cache cursors
// directory.
const StateFileName = "ingest-state.json"

// FileState is the cursor entry for one source file.
type FileState struct {
	InputHash  string `json:"input_hash"`
	TapeID     string `json:"tape_id"`
	IngestedAt string `json:"ingested_at"`
}

// State maps "adapter:path" keys to the last ingested content of each
// source file. Losing it costs a re-conversion, never data.
type State struct {
	Files map[string]FileState `json:"files"`
}

// StateKey builds the cursor key for a source file under an adapter.
func StateKey(adapter tape.AdapterID, path string) string {
	return string(adapter) + ":" + path
}

// LoadState reads the cursor file. A missing file is an empty state.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Files: map[string]FileState{}}, nil
		}
		return nil, errors.NewEngramError(errors.IOError, "could not read ingest state", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.NewEngramError(errors.IOError, "could not parse ingest state", err)
	}
	if state.Files == nil {
		state.Files = map[string]FileState{}
	}
	return &state, nil
}

// SaveState writes the cursor file atomically.
func SaveState(path string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.NewEngramError(errors.IOError, "could not encode ingest state", err)
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0644); err != nil {
		return errors.NewEngramError(errors.IOError, "could not write ingest state", err)
	}
	return nil
}

func inputHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
