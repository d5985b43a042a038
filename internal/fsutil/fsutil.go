// Package fsutil provides crash-safe filesystem helpers shared by the
// tape store, the ingest cursor state, and config writers.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

var tmpCounter atomic.Uint64

// WriteFileAtomic writes data to path by way of a uniquely named temp file
// in the same directory: create exclusive, write, fsync, rename. Readers
// either see the old content or the new content, never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".engram.tmp.%s.%d.%d.%d",
		filepath.Base(path), time.Now().UnixNano(), os.Getpid(), tmpCounter.Add(1)))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		// Some platforms cannot rename over an existing file.
		if removeErr := os.Remove(path); removeErr != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to replace %s: %w", path, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to replace %s: %w", path, err)
		}
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry so the rename survives a crash.
// Best effort: not every platform lets you fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
