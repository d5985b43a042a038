package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"engram/internal/config"
	"engram/internal/errors"
	"engram/internal/tape"
)

// Candidate is one resolved source file and the adapter chosen for it. An
// empty Adapter defers to per-file detection at ingest time.
type Candidate struct {
	Path    string
	Adapter tape.AdapterID
}

// ResolveSources expands configured sources into concrete files. A glob
// pattern matches files; a directory walks recursively; a plain file is
// taken as is; anything else resolves to nothing. Exclude patterns drop
// matches. The result is sorted by adapter then path and deduped.
func ResolveSources(cwd, home string, sources []config.SourceSpec, exclude []string) ([]Candidate, error) {
	excludes := compileExcludes(cwd, home, exclude)

	var out []Candidate
	for _, source := range sources {
		raw := strings.TrimSpace(source.Path)
		if raw == "" {
			continue
		}
		expanded := config.ExpandTilde(raw, home)

		var files []string
		switch {
		case looksLikeGlob(raw):
			matched, err := globPaths(expanded)
			if err != nil {
				return nil, err
			}
			files = matched
		case isDir(expanded):
			files = walkFiles(expanded)
		case isFile(expanded):
			files = []string{expanded}
		}

		for _, path := range files {
			if isExcluded(path, excludes) {
				continue
			}
			out = append(out, Candidate{Path: path, Adapter: source.Adapter})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return candidateKey(out[i]) < candidateKey(out[j])
	})
	deduped := out[:0]
	for _, c := range out {
		if n := len(deduped); n > 0 && deduped[n-1] == c {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped, nil
}

func candidateKey(c Candidate) string {
	adapter := string(c.Adapter)
	if adapter == "" {
		adapter = tape.ChoiceAuto
	}
	return adapter + ":" + c.Path
}

func looksLikeGlob(path string) bool {
	return strings.ContainsAny(path, "*?[]{}")
}

// globPaths expands a glob pattern to matching files. Patterns with **
// walk from the static prefix and match each file; the rest go through
// filepath.Glob directly.
func globPaths(pattern string) ([]string, error) {
	if !strings.Contains(pattern, "**") {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.New(errors.ConfigError, fmt.Sprintf("invalid glob pattern `%s`", pattern))
		}
		var files []string
		for _, m := range matches {
			if isFile(m) {
				files = append(files, m)
			}
		}
		return files, nil
	}

	var files []string
	filepath.WalkDir(staticGlobPrefix(pattern), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if matchGlob(pattern, path) {
			files = append(files, path)
		}
		return nil
	})
	return files, nil
}

// staticGlobPrefix returns the deepest directory before the first
// wildcard, the walk root for ** patterns.
func staticGlobPrefix(pattern string) string {
	i := strings.IndexAny(pattern, "*?[{")
	if i < 0 {
		return pattern
	}
	return filepath.Dir(pattern[:i])
}

// matchGlob matches a path against a glob pattern, with ** spanning any
// number of directories. Single components match with filepath.Match.
func matchGlob(pattern, path string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := filepath.Match(pattern, path)
		return err == nil && ok
	}
	parts := strings.SplitN(pattern, "**", 2)
	prefix, suffix := parts[0], strings.TrimPrefix(parts[1], "/")
	if prefix != "" && !strings.HasPrefix(path, prefix) {
		return false
	}
	if suffix == "" {
		return true
	}
	rest := strings.TrimPrefix(path, prefix)
	if ok, err := filepath.Match(suffix, rest); err == nil && ok {
		return true
	}
	suffixParts := strings.Split(suffix, "/")
	restParts := strings.Split(rest, "/")
	if len(restParts) < len(suffixParts) {
		return false
	}
	tail := restParts[len(restParts)-len(suffixParts):]
	for i, part := range suffixParts {
		ok, err := filepath.Match(part, tail[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// compileExcludes normalizes exclude patterns: tilde expanded, relative
// patterns anchored at the working directory.
func compileExcludes(cwd, home string, patterns []string) []string {
	var out []string
	for _, pattern := range patterns {
		raw := strings.TrimSpace(pattern)
		if raw == "" {
			continue
		}
		expanded := config.ExpandTilde(raw, home)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Join(cwd, expanded)
		}
		out = append(out, expanded)
	}
	return out
}

func isExcluded(path string, excludes []string) bool {
	for _, pattern := range excludes {
		if matchGlob(pattern, path) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func walkFiles(root string) []string {
	var files []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files
}

// Discovery reports what one adapter's artifact templates currently match
// on this machine.
type Discovery struct {
	Adapter  string   `json:"adapter"`
	Disabled bool     `json:"disabled,omitempty"`
	Paths    []string `json:"paths"`
	Matches  int      `json:"matches"`
}

// discoveryPlaceholders are the documentation placeholders in artifact
// templates; matching substitutes a wildcard for each.
var discoveryPlaceholders = regexp.MustCompile(`<[^>]+>|YYYY|MM|DD`)

// DiscoverArtifacts scans each adapter's discovery paths, after overrides,
// and counts the files present without converting anything. Templates that
// do not resolve to an absolute path are listed but not scanned.
func DiscoverArtifacts(overrides *config.AdapterOverrides, home string) []Discovery {
	var out []Discovery
	for _, descriptor := range tape.Registry() {
		paths, enabled := overrides.DiscoveryPaths(descriptor.ID, home)
		d := Discovery{Adapter: string(descriptor.ID), Paths: paths}
		if !enabled {
			d.Disabled = true
			d.Paths = []string{}
			out = append(out, d)
			continue
		}
		for _, template := range paths {
			pattern := discoveryPlaceholders.ReplaceAllString(template, "*")
			if !filepath.IsAbs(pattern) {
				continue
			}
			files, err := globPaths(pattern)
			if err != nil {
				continue
			}
			d.Matches += len(files)
		}
		out = append(out, d)
	}
	return out
}
