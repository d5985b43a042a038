package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"engram/internal/config"
	"engram/internal/tape"
)

func writeSourceFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestResolveSourcesFileDirAndMissing(t *testing.T) {
	root := t.TempDir()
	single := filepath.Join(root, "single.jsonl")
	inDir := filepath.Join(root, "sessions", "a.jsonl")
	nested := filepath.Join(root, "sessions", "nested", "b.jsonl")
	writeSourceFile(t, single)
	writeSourceFile(t, inDir)
	writeSourceFile(t, nested)

	sources := []config.SourceSpec{
		{Path: single},
		{Path: filepath.Join(root, "sessions"), Adapter: tape.AdapterCodexCLI},
		{Path: filepath.Join(root, "does-not-exist.jsonl")},
	}
	candidates, err := ResolveSources(root, "/home/tester", sources, nil)
	if err != nil {
		t.Fatalf("ResolveSources failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("Expected 3 candidates, got %d: %+v", len(candidates), candidates)
	}
	// Sorted by adapter then path: auto sorts before codex-cli.
	if candidates[0].Path != single || candidates[0].Adapter != "" {
		t.Errorf("Unexpected first candidate: %+v", candidates[0])
	}
	if candidates[1].Path != inDir || candidates[1].Adapter != tape.AdapterCodexCLI {
		t.Errorf("Unexpected second candidate: %+v", candidates[1])
	}
	if candidates[2].Path != nested {
		t.Errorf("Unexpected third candidate: %+v", candidates[2])
	}
}

func TestResolveSourcesGlob(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, filepath.Join(root, "logs", "one.jsonl"))
	writeSourceFile(t, filepath.Join(root, "logs", "two.jsonl"))
	writeSourceFile(t, filepath.Join(root, "logs", "notes.txt"))

	sources := []config.SourceSpec{
		{Path: filepath.Join(root, "logs", "*.jsonl"), Adapter: tape.AdapterOpenClaw},
	}
	candidates, err := ResolveSources(root, "/home/tester", sources, nil)
	if err != nil {
		t.Fatalf("ResolveSources failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	for _, c := range candidates {
		if filepath.Ext(c.Path) != ".jsonl" {
			t.Errorf("Glob leaked non-matching file %s", c.Path)
		}
		if c.Adapter != tape.AdapterOpenClaw {
			t.Errorf("Expected openclaw adapter, got %q", c.Adapter)
		}
	}
}

func TestResolveSourcesDoubleStarGlob(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, filepath.Join(root, "data", "2025", "08", "x.jsonl"))
	writeSourceFile(t, filepath.Join(root, "data", "2025", "09", "y.jsonl"))
	writeSourceFile(t, filepath.Join(root, "data", "top.jsonl"))
	writeSourceFile(t, filepath.Join(root, "data", "2025", "08", "skip.txt"))

	sources := []config.SourceSpec{
		{Path: filepath.Join(root, "data", "**", "*.jsonl")},
	}
	candidates, err := ResolveSources(root, "/home/tester", sources, nil)
	if err != nil {
		t.Fatalf("ResolveSources failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("Expected 3 candidates from ** glob, got %d: %+v", len(candidates), candidates)
	}
}

func TestResolveSourcesExcludes(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "sessions", "keep.jsonl")
	private := filepath.Join(root, "sessions", "private-x.jsonl")
	secret := filepath.Join(root, "other", "secret.jsonl")
	writeSourceFile(t, keep)
	writeSourceFile(t, private)
	writeSourceFile(t, secret)

	sources := []config.SourceSpec{
		{Path: filepath.Join(root, "sessions")},
		{Path: secret},
	}
	exclude := []string{
		"sessions/private-*", // relative, anchored at the working directory
		secret,               // absolute literal
	}
	candidates, err := ResolveSources(root, "/home/tester", sources, exclude)
	if err != nil {
		t.Fatalf("ResolveSources failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate after excludes, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Path != keep {
		t.Errorf("Expected %s to survive, got %s", keep, candidates[0].Path)
	}
}

func TestResolveSourcesDedupes(t *testing.T) {
	root := t.TempDir()
	session := filepath.Join(root, "sessions", "a.jsonl")
	writeSourceFile(t, session)

	sources := []config.SourceSpec{
		{Path: filepath.Join(root, "sessions"), Adapter: tape.AdapterClaudeCode},
		{Path: session, Adapter: tape.AdapterClaudeCode},
		{Path: session}, // same path, different adapter: both survive
	}
	candidates, err := ResolveSources(root, "/home/tester", sources, nil)
	if err != nil {
		t.Fatalf("ResolveSources failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates after dedupe, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Adapter != "" || candidates[1].Adapter != tape.AdapterClaudeCode {
		t.Errorf("Unexpected adapters: %+v", candidates)
	}
}

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/a/*.jsonl", "/a/x.jsonl", true},
		{"/a/*.jsonl", "/a/b/x.jsonl", false},
		{"/a/**/*.jsonl", "/a/x.jsonl", true},
		{"/a/**/*.jsonl", "/a/b/c/x.jsonl", true},
		{"/a/**/*.jsonl", "/b/x.jsonl", false},
		{"/a/**/sess-*.jsonl", "/a/2025/sess-1.jsonl", true},
		{"/a/**/sess-*.jsonl", "/a/2025/other.jsonl", false},
		{"/a/**/08/*.jsonl", "/a/2025/08/x.jsonl", true},
		{"/a/**/08/*.jsonl", "/a/2025/09/x.jsonl", false},
		{"/a/**", "/a/anything/deep.jsonl", true},
	}
	for _, tc := range cases {
		if got := matchGlob(tc.pattern, tc.path); got != tc.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestStaticGlobPrefix(t *testing.T) {
	cases := []struct {
		pattern string
		want    string
	}{
		{"/home/u/.codex/sessions/**/*.jsonl", "/home/u/.codex/sessions"},
		{"/logs/sess-*.jsonl", "/logs"},
		{"/a/b/**", "/a/b"},
		{"/plain/path.jsonl", "/plain/path.jsonl"},
	}
	for _, tc := range cases {
		if got := staticGlobPrefix(tc.pattern); got != tc.want {
			t.Errorf("staticGlobPrefix(%q) = %q, want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestLooksLikeGlob(t *testing.T) {
	for _, path := range []string{"*.jsonl", "a/**/b", "x?.json", "[ab].log", "{a,b}.txt"} {
		if !looksLikeGlob(path) {
			t.Errorf("Expected %q to look like a glob", path)
		}
	}
	for _, path := range []string{"/plain/file.jsonl", "relative/dir"} {
		if looksLikeGlob(path) {
			t.Errorf("Expected %q to be a plain path", path)
		}
	}
}

func TestDiscoverArtifacts(t *testing.T) {
	home := t.TempDir()
	writeSourceFile(t, filepath.Join(home, ".codex", "sessions", "2025", "08", "25", "rollout-1.jsonl"))
	writeSourceFile(t, filepath.Join(home, ".codex", "history.jsonl"))
	writeSourceFile(t, filepath.Join(home, ".claude", "projects", "proj", "sess.jsonl"))

	overrides := &config.AdapterOverrides{
		Adapters: map[string]config.AdapterOverride{
			"gemini-cli": {Disabled: true},
		},
	}
	discoveries := DiscoverArtifacts(overrides, home)

	byAdapter := make(map[string]Discovery, len(discoveries))
	for _, d := range discoveries {
		byAdapter[d.Adapter] = d
	}

	codex, ok := byAdapter["codex-cli"]
	if !ok {
		t.Fatal("Expected a codex-cli discovery entry")
	}
	if codex.Matches != 2 {
		t.Errorf("Expected 2 codex matches, got %d", codex.Matches)
	}

	claude := byAdapter["claude-code"]
	if claude.Matches != 1 {
		t.Errorf("Expected 1 claude match, got %d", claude.Matches)
	}

	gemini := byAdapter["gemini-cli"]
	if !gemini.Disabled {
		t.Error("Expected gemini-cli to be disabled")
	}
	if len(gemini.Paths) != 0 {
		t.Errorf("Expected no paths for a disabled adapter, got %v", gemini.Paths)
	}

	// Cursor templates never resolve to absolute paths; they are listed
	// but not scanned.
	cursor := byAdapter["cursor"]
	if cursor.Matches != 0 {
		t.Errorf("Expected no cursor matches, got %d", cursor.Matches)
	}
	if len(cursor.Paths) == 0 {
		t.Error("Expected cursor templates to be listed")
	}
}
