// Package paths resolves engram's on-disk layout. A repository keeps its
// store under .engram/ and rebuildable state under .engram-cache/; global
// mode uses the same layout rooted at the home directory.
package paths

import (
	"os"
	"path/filepath"

	"engram/internal/errors"
)

// Paths locates every file and directory engram touches for one store.
type Paths struct {
	Root       string
	EngramDir  string
	IndexPath  string
	TapesDir   string
	ObjectsDir string
	ConfigPath string
	CacheDir   string
	CursorsDir string
}

// At returns the layout rooted at the given directory.
func At(root string) *Paths {
	engramDir := filepath.Join(root, ".engram")
	cacheDir := filepath.Join(root, ".engram-cache")
	return &Paths{
		Root:       root,
		EngramDir:  engramDir,
		IndexPath:  filepath.Join(engramDir, "index.sqlite"),
		TapesDir:   filepath.Join(engramDir, "tapes"),
		ObjectsDir: filepath.Join(engramDir, "objects"),
		ConfigPath: filepath.Join(engramDir, "config.yml"),
		CacheDir:   cacheDir,
		CursorsDir: filepath.Join(cacheDir, "cursors"),
	}
}

// Resolve returns the working-directory layout, or the home-rooted layout
// in global mode.
func Resolve(global bool) (*Paths, error) {
	if global {
		home, err := HomeDir()
		if err != nil {
			return nil, err
		}
		return At(home), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.NewEngramError(errors.IOError, "could not determine working directory", err)
	}
	return At(cwd), nil
}

// HomeDir resolves the user's home directory.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewEngramError(errors.HomeError, "could not determine home directory", err)
	}
	return home, nil
}

// UserConfigPath returns the user-layer config location, which is
// home-based even when operating on a repository store.
func UserConfigPath() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".engram", "config.yml"), nil
}

// ProjectConfigName is the per-project override file searched for in the
// working directory and its ancestors.
const ProjectConfigName = ".engram.project.yml"

// NearestProjectConfig walks up from dir looking for a project config.
// Only the nearest one applies. Reports false when none exists.
func NearestProjectConfig(dir string) (string, bool) {
	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// EnsureLayout creates the directory tree for a store.
func (p *Paths) EnsureLayout() error {
	for _, dir := range []string{p.EngramDir, p.TapesDir, p.ObjectsDir, p.CursorsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewEngramError(errors.IOError, "could not create store directory", err)
		}
	}
	return nil
}

// RequireInitialized verifies that the store exists.
func (p *Paths) RequireInitialized() error {
	if _, err := os.Stat(p.EngramDir); err != nil {
		return errors.New(errors.NotInitialized, "repository is not initialized; run `engram init`")
	}
	return nil
}
