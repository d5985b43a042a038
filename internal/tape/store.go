package tape

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"engram/internal/errors"
	"engram/internal/fsutil"
)

// BlobStore keeps compressed tapes on disk, one content-addressed file per
// tape id.
type BlobStore struct {
	dir    string
	logger *slog.Logger
}

// NewBlobStore creates a store over the given tapes directory. The
// directory must already exist.
func NewBlobStore(dir string, logger *slog.Logger) *BlobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobStore{dir: dir, logger: logger}
}

// Dir returns the tapes directory.
func (s *BlobStore) Dir() string {
	return s.dir
}

// Path returns where the blob for a tape id lives.
func (s *BlobStore) Path(tapeID string) string {
	return filepath.Join(s.dir, tapeID+TapeSuffix)
}

// Exists reports whether a blob file is present for the tape id.
func (s *BlobStore) Exists(tapeID string) bool {
	info, err := os.Stat(s.Path(tapeID))
	return err == nil && !info.IsDir()
}

// Write stores uncompressed tape content under its id and returns the
// compressed size on disk. Writing an id that is already stored verifies
// the existing blob instead: a blob whose content no longer hashes to its
// id is a conflict.
func (s *BlobStore) Write(tapeID string, content []byte) (int64, error) {
	path := s.Path(tapeID)
	if s.Exists(tapeID) {
		if err := s.verify(tapeID, path); err != nil {
			return 0, err
		}
		return s.Size(tapeID)
	}

	compressed, err := Compress(content)
	if err != nil {
		return 0, err
	}
	if err := fsutil.WriteFileAtomic(path, compressed, 0644); err != nil {
		return 0, errors.NewEngramError(errors.IOError, "could not write tape blob", err)
	}
	s.logger.Debug("wrote tape blob", "tape_id", tapeID, "compressed_bytes", len(compressed))
	return int64(len(compressed)), nil
}

// verify rehashes a stored blob against the id in its filename.
func (s *BlobStore) verify(tapeID, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.NewEngramError(errors.IOError, "could not read tape blob", err)
	}
	content, err := Decompress(raw)
	if err != nil {
		return err
	}
	if TapeID(content) != tapeID {
		return errors.New(errors.TapeConflict,
			fmt.Sprintf("tape blob `%s` does not match its content hash", tapeID))
	}
	return nil
}

// Read returns the uncompressed content of a stored tape.
func (s *BlobStore) Read(tapeID string) ([]byte, error) {
	raw, err := os.ReadFile(s.Path(tapeID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.TapeNotFound, fmt.Sprintf("tape `%s` not found", tapeID))
		}
		return nil, errors.NewEngramError(errors.IOError, "could not read tape blob", err)
	}
	return Decompress(raw)
}

// Size returns the compressed on-disk size of a stored tape.
func (s *BlobStore) Size(tapeID string) (int64, error) {
	info, err := os.Stat(s.Path(tapeID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.New(errors.TapeNotFound, fmt.Sprintf("tape `%s` not found", tapeID))
		}
		return 0, errors.NewEngramError(errors.IOError, "could not stat tape blob", err)
	}
	return info.Size(), nil
}

// List returns the ids of all stored tapes, sorted.
func (s *BlobStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewEngramError(errors.IOError, "could not list tapes directory", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, TapeSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, TapeSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Remove deletes a stored tape blob.
func (s *BlobStore) Remove(tapeID string) error {
	if err := os.Remove(s.Path(tapeID)); err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.TapeNotFound, fmt.Sprintf("tape `%s` not found", tapeID))
		}
		return errors.NewEngramError(errors.IOError, "could not remove tape blob", err)
	}
	s.logger.Debug("removed tape blob", "tape_id", tapeID)
	return nil
}
