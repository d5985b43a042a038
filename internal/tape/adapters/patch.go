package adapters

import (
	"encoding/json"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

var applyPatchPrefixes = []string{
	"*** Update File: ",
	"*** Add File: ",
	"*** Delete File: ",
}

// ExtractApplyPatchFiles lists the files named by an apply_patch call.
// The arguments may be a JSON object whose patch field holds the body, or
// the raw patch body itself.
func ExtractApplyPatchFiles(arguments string) []string {
	body := arguments
	var wrapper struct {
		Patch *string `json:"patch"`
	}
	if err := json.Unmarshal([]byte(arguments), &wrapper); err == nil && wrapper.Patch != nil {
		body = *wrapper.Patch
	}

	collector := newFileCollector()
	collectEnvelopeFiles(body, collector)
	return collector.files
}

// ExtractPatchFiles lists the files a patch text touches, accepting both
// the apply_patch envelope headers and unified diff file markers.
func ExtractPatchFiles(patchText string) []string {
	collector := newFileCollector()
	collectEnvelopeFiles(patchText, collector)
	for _, file := range ExtractUnifiedDiffFiles(patchText) {
		collector.add(file)
	}
	return collector.files
}

// ExtractUnifiedDiffFiles parses a unified diff and lists the files it
// touches, old name then new name per file, /dev/null skipped. Text that
// does not parse as a diff yields nothing.
func ExtractUnifiedDiffFiles(patchText string) []string {
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(patchText))
	if err != nil {
		return nil
	}
	collector := newFileCollector()
	for _, fileDiff := range fileDiffs {
		collector.add(stripDiffName(fileDiff.OrigName))
		collector.add(stripDiffName(fileDiff.NewName))
	}
	return collector.files
}

func collectEnvelopeFiles(body string, collector *fileCollector) {
	for _, line := range strings.Split(body, "\n") {
		for _, prefix := range applyPatchPrefixes {
			if rest, ok := strings.CutPrefix(line, prefix); ok {
				collector.add(rest)
			}
		}
	}
}

func stripDiffName(name string) string {
	if rest, ok := strings.CutPrefix(name, "a/"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(name, "b/"); ok {
		return rest
	}
	return name
}

// fileCollector accumulates trimmed, deduplicated file paths in first-seen
// order.
type fileCollector struct {
	files []string
	seen  map[string]struct{}
}

func newFileCollector() *fileCollector {
	return &fileCollector{seen: map[string]struct{}{}}
}

func (c *fileCollector) add(path string) {
	path = strings.TrimSpace(path)
	if path == "" || path == "/dev/null" {
		return
	}
	if _, dup := c.seen[path]; dup {
		return
	}
	c.seen[path] = struct{}{}
	c.files = append(c.files, path)
}
