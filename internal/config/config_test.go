package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"engram/internal/errors"
	"engram/internal/tape"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestLoadFileParsesSourcesAndExcludes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	writeFile(t, path, `sources:
  - path: ~/.codex/sessions/**/*.jsonl
    adapter: codex
  - path: ./logs/*.jsonl
    adapter: auto
exclude:
  - "**/private-*"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(cfg.Sources))
	}
	if cfg.Sources[0].Adapter != tape.AdapterCodexCLI {
		t.Errorf("Expected codex-cli adapter, got %q", cfg.Sources[0].Adapter)
	}
	if cfg.Sources[1].Adapter != "" {
		t.Errorf("Expected auto source to have empty adapter, got %q", cfg.Sources[1].Adapter)
	}
	if len(cfg.Exclude) != 1 || cfg.Exclude[0] != "**/private-*" {
		t.Errorf("Expected exclude [**/private-*], got %v", cfg.Exclude)
	}
}

func TestLoadFileRejectsUnknownAdapter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	writeFile(t, path, `sources:
  - path: /tmp/a.jsonl
    adapter: emacs
`)

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("Expected error for unknown adapter")
	}
	if errors.CodeOf(err) != errors.ConfigError {
		t.Errorf("Expected config_error, got %s", errors.CodeOf(err))
	}
	if !strings.Contains(errors.MessageOf(err), "unknown adapter `emacs`") {
		t.Errorf("Unexpected message: %s", errors.MessageOf(err))
	}
}

func TestExpandTilde(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"~", "/home/tester"},
		{"~/sessions", "/home/tester/sessions"},
		{"/abs/path.jsonl", "/abs/path.jsonl"},
		{"relative/path.jsonl", "relative/path.jsonl"},
	}
	for _, tc := range cases {
		if got := ExpandTilde(tc.in, "/home/tester"); got != tc.want {
			t.Errorf("ExpandTilde(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestLoadEffectiveMergesLayers(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "workspace", "repo")

	userCfg := filepath.Join(root, "home", ".engram", "config.yml")
	writeFile(t, userCfg, `sources:
  - path: /shared/global.jsonl
    adapter: codex
  - path: /shared/dup.jsonl
    adapter: openclaw
exclude:
  - "user-*"
`)
	writeFile(t, filepath.Join(root, "workspace", ".engram.project.yml"), `sources:
  - path: /shared/project.jsonl
    adapter: cursor
  - path: /shared/dup.jsonl
    adapter: claude
exclude:
  - "project-*"
`)
	repoCfg := filepath.Join(repo, ".engram", "config.yml")
	writeFile(t, repoCfg, `sources:
  - path: /shared/repo.jsonl
    adapter: gemini
  - path: /shared/dup.jsonl
    adapter: codex
exclude:
  - "repo-*"
`)

	merged, err := LoadEffective(repo, repoCfg, userCfg)
	if err != nil {
		t.Fatalf("LoadEffective failed: %v", err)
	}
	if len(merged.Sources) != 4 {
		t.Fatalf("Expected 4 merged sources, got %d: %v", len(merged.Sources), merged.Sources)
	}
	if merged.Sources[0].Path != "/shared/global.jsonl" {
		t.Errorf("Expected first source /shared/global.jsonl, got %s", merged.Sources[0].Path)
	}
	if merged.Sources[1].Path != "/shared/dup.jsonl" || merged.Sources[1].Adapter != tape.AdapterCodexCLI {
		t.Errorf("Expected dup source replaced in place by repo layer, got %+v", merged.Sources[1])
	}
	if merged.Sources[2].Path != "/shared/project.jsonl" {
		t.Errorf("Expected third source /shared/project.jsonl, got %s", merged.Sources[2].Path)
	}
	if merged.Sources[3].Path != "/shared/repo.jsonl" {
		t.Errorf("Expected fourth source /shared/repo.jsonl, got %s", merged.Sources[3].Path)
	}
	if len(merged.Exclude) != 1 || merged.Exclude[0] != "repo-*" {
		t.Errorf("Expected exclude from last layer [repo-*], got %v", merged.Exclude)
	}
}

func TestLoadEffectiveUsesNearestProjectConfig(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "workspace", "repo")
	if err := os.MkdirAll(repo, 0755); err != nil {
		t.Fatalf("Failed to create repo dir: %v", err)
	}

	userCfg := filepath.Join(root, "home", ".engram", "config.yml")
	writeFile(t, userCfg, `sources:
  - path: /shared/user.jsonl
    adapter: codex
`)
	writeFile(t, filepath.Join(root, ".engram.project.yml"), `sources:
  - path: /shared/root-project.jsonl
    adapter: codex
`)
	writeFile(t, filepath.Join(root, "workspace", ".engram.project.yml"), `sources:
  - path: /shared/nearest-project.jsonl
    adapter: claude
`)

	merged, err := LoadEffective(repo, "", userCfg)
	if err != nil {
		t.Fatalf("LoadEffective failed: %v", err)
	}
	if len(merged.Sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d: %v", len(merged.Sources), merged.Sources)
	}
	if merged.Sources[1].Path != "/shared/nearest-project.jsonl" {
		t.Errorf("Expected nearest project source, got %s", merged.Sources[1].Path)
	}
	if merged.Sources[1].Adapter != tape.AdapterClaudeCode {
		t.Errorf("Expected claude-code adapter, got %q", merged.Sources[1].Adapter)
	}
}

func TestDefaultYAMLRoundTrips(t *testing.T) {
	dir := t.TempDir()

	repoYAML, err := DefaultYAML(false)
	if err != nil {
		t.Fatalf("DefaultYAML failed: %v", err)
	}
	if !strings.Contains(string(repoYAML), "version: 1") {
		t.Errorf("Expected version key in default config:\n%s", repoYAML)
	}
	if !strings.Contains(string(repoYAML), "exclude: []") {
		t.Errorf("Expected empty exclude list in default config:\n%s", repoYAML)
	}

	repoPath := filepath.Join(dir, "repo.yml")
	writeFile(t, repoPath, string(repoYAML))
	repoCfg, err := LoadFile(repoPath)
	if err != nil {
		t.Fatalf("LoadFile of default repo config failed: %v", err)
	}
	if len(repoCfg.Sources) != 2 {
		t.Fatalf("Expected 2 default repo sources, got %d", len(repoCfg.Sources))
	}
	if repoCfg.Sources[0].Adapter != tape.AdapterCodexCLI || repoCfg.Sources[1].Adapter != tape.AdapterClaudeCode {
		t.Errorf("Unexpected default adapters: %+v", repoCfg.Sources)
	}

	globalYAML, err := DefaultYAML(true)
	if err != nil {
		t.Fatalf("DefaultYAML(global) failed: %v", err)
	}
	globalPath := filepath.Join(dir, "global.yml")
	writeFile(t, globalPath, string(globalYAML))
	globalCfg, err := LoadFile(globalPath)
	if err != nil {
		t.Fatalf("LoadFile of default global config failed: %v", err)
	}
	if len(globalCfg.Sources) != 3 {
		t.Fatalf("Expected 3 default global sources, got %d", len(globalCfg.Sources))
	}
	if globalCfg.Sources[2].Adapter != tape.AdapterOpenClaw {
		t.Errorf("Expected openclaw as third global source, got %q", globalCfg.Sources[2].Adapter)
	}
}

func TestAdapterOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adapters.toml")
	writeFile(t, path, `[adapters.codex-cli]
disabled = true

[adapters.claude-code]
paths = ["/mnt/backups/claude/**/*.jsonl"]
`)

	overrides, err := LoadAdapterOverrides(path)
	if err != nil {
		t.Fatalf("LoadAdapterOverrides failed: %v", err)
	}

	if _, ok := overrides.DiscoveryPaths(tape.AdapterCodexCLI, "/home/dev"); ok {
		t.Error("Expected codex-cli to be disabled")
	}

	claudePaths, ok := overrides.DiscoveryPaths(tape.AdapterClaudeCode, "/home/dev")
	if !ok {
		t.Fatal("Expected claude-code to stay enabled")
	}
	if len(claudePaths) != 1 || claudePaths[0] != "/mnt/backups/claude/**/*.jsonl" {
		t.Errorf("Expected overridden claude paths, got %v", claudePaths)
	}

	geminiPaths, ok := overrides.DiscoveryPaths(tape.AdapterGeminiCLI, "/home/dev")
	if !ok || len(geminiPaths) == 0 {
		t.Fatalf("Expected default gemini discovery paths, got %v (ok=%v)", geminiPaths, ok)
	}
	for _, p := range geminiPaths {
		if strings.Contains(p, "~") {
			t.Errorf("Expected tilde expansion in %q", p)
		}
	}
}

func TestLoadAdapterOverridesMissingFile(t *testing.T) {
	overrides, err := LoadAdapterOverrides(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Expected missing override file to be fine, got %v", err)
	}
	if paths, ok := overrides.DiscoveryPaths(tape.AdapterCodexCLI, "/home/dev"); !ok || len(paths) == 0 {
		t.Errorf("Expected scaffold defaults with no override file, got %v (ok=%v)", paths, ok)
	}
}
