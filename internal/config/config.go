// Package config loads engram's layered source configuration. Three YAML
// layers merge in order: the user config under the home directory, the
// nearest project config above the working directory, then the repository
// config. Later layers win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"engram/internal/errors"
	"engram/internal/paths"
	"engram/internal/tape"
)

// SourceSpec names one transcript source: a path or glob plus the adapter
// that converts whatever it matches. An empty Adapter means per-file
// detection.
type SourceSpec struct {
	Path    string
	Adapter tape.AdapterID
}

// Effective is the merged configuration for one invocation.
type Effective struct {
	Sources []SourceSpec
	Exclude []string
}

// layer is one parsed config file. hasExclude distinguishes an absent
// exclude key from a present empty list, which clears inherited excludes.
type layer struct {
	sources    []SourceSpec
	exclude    []string
	hasExclude bool
}

// LoadEffective merges the user, project, and repository layers. Missing
// files are skipped; unparseable ones fail loudly.
func LoadEffective(cwd, repoConfigPath, userConfigPath string) (*Effective, error) {
	merged := &Effective{}

	if fileExists(userConfigPath) {
		l, err := loadLayer(userConfigPath)
		if err != nil {
			return nil, err
		}
		mergeLayer(merged, l)
	}
	if projectPath, ok := paths.NearestProjectConfig(cwd); ok {
		l, err := loadLayer(projectPath)
		if err != nil {
			return nil, err
		}
		mergeLayer(merged, l)
	}
	if fileExists(repoConfigPath) {
		l, err := loadLayer(repoConfigPath)
		if err != nil {
			return nil, err
		}
		mergeLayer(merged, l)
	}

	return merged, nil
}

// LoadFile parses a single config file with no layering.
func LoadFile(path string) (*Effective, error) {
	l, err := loadLayer(path)
	if err != nil {
		return nil, err
	}
	return &Effective{Sources: l.sources, Exclude: l.exclude}, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func loadLayer(path string) (layer, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return layer{}, errors.NewEngramError(errors.ConfigError,
			fmt.Sprintf("could not read config %s", path), err)
	}

	var raw struct {
		Sources []struct {
			Path    string `mapstructure:"path"`
			Adapter string `mapstructure:"adapter"`
		} `mapstructure:"sources"`
		Exclude []string `mapstructure:"exclude"`
	}
	if err := v.Unmarshal(&raw); err != nil {
		return layer{}, errors.NewEngramError(errors.ConfigError,
			fmt.Sprintf("could not parse config %s", path), err)
	}

	out := layer{exclude: raw.Exclude, hasExclude: v.IsSet("exclude")}
	for _, s := range raw.Sources {
		id, _, err := tape.ParseAdapterChoice(s.Adapter)
		if err != nil {
			return layer{}, err
		}
		out.sources = append(out.sources, SourceSpec{Path: s.Path, Adapter: id})
	}
	return out, nil
}

func mergeLayer(merged *Effective, l layer) {
	merged.Sources = mergeSources(merged.Sources, l.sources)
	if l.hasExclude {
		merged.Exclude = l.exclude
	}
}

// mergeSources dedupes by path: a later entry replaces the earlier one in
// place, new paths append in order.
func mergeSources(existing, incoming []SourceSpec) []SourceSpec {
	byPath := make(map[string]int, len(existing))
	for i, s := range existing {
		byPath[s.Path] = i
	}
	for _, s := range incoming {
		if i, ok := byPath[s.Path]; ok {
			existing[i] = s
			continue
		}
		byPath[s.Path] = len(existing)
		existing = append(existing, s)
	}
	return existing
}

// ExpandTilde resolves a leading ~ or ~/ against the home directory. Other
// paths pass through unchanged.
func ExpandTilde(path, home string) string {
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}

// fileConfig is the on-disk YAML shape for generated defaults.
type fileConfig struct {
	Version int          `yaml:"version"`
	Sources []fileSource `yaml:"sources"`
	Exclude []string     `yaml:"exclude"`
}

type fileSource struct {
	Adapter string `yaml:"adapter"`
	Path    string `yaml:"path"`
}

func defaultSources(global bool) []fileSource {
	sources := []fileSource{
		{Adapter: "codex", Path: "~/.codex/sessions/**/*.jsonl"},
		{Adapter: "claude", Path: "~/.claude/projects/**/*.jsonl"},
	}
	if global {
		sources = append(sources, fileSource{Adapter: "openclaw", Path: "~/.openclaw/sessions/**/*.jsonl"})
	}
	return sources
}

// DefaultYAML renders the default config for a fresh store. Global stores
// also watch the openclaw session directory.
func DefaultYAML(global bool) ([]byte, error) {
	doc := fileConfig{Version: 1, Sources: defaultSources(global), Exclude: []string{}}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.NewEngramError(errors.ConfigError, "could not render default config", err)
	}
	return data, nil
}
