package query

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"engram/internal/anchor"
	"engram/internal/errors"
	"engram/internal/index"
)

// ParseFileRangeTarget splits a "<file>:<start>-<end>" target. The last
// colon separates file from range, so file names containing colons still
// parse. Lines are 1-based and the range is inclusive.
func ParseFileRangeTarget(target string) (string, uint32, uint32, error) {
	idx := strings.LastIndex(target, ":")
	if idx < 0 {
		return "", 0, 0, errors.New(errors.InvalidExplainTarget, "expected <file>:<start>-<end>")
	}
	file, rangePart := target[:idx], target[idx+1:]

	startRaw, endRaw, found := strings.Cut(rangePart, "-")
	if !found {
		return "", 0, 0, errors.New(errors.InvalidExplainTarget, "expected <file>:<start>-<end>")
	}
	start, err := strconv.ParseUint(startRaw, 10, 32)
	if err != nil {
		return "", 0, 0, errors.New(errors.InvalidExplainTarget, "start line must be an integer")
	}
	end, err := strconv.ParseUint(endRaw, 10, 32)
	if err != nil {
		return "", 0, 0, errors.New(errors.InvalidExplainTarget, "end line must be an integer")
	}
	if start == 0 || end == 0 || end < start {
		return "", 0, 0, errors.New(errors.InvalidExplainTarget, "line range must be 1-based and end must be >= start")
	}
	return file, uint32(start), uint32(end), nil
}

// ReadFileSpan returns the requested lines joined with newlines. The range
// must lie within the file.
func ReadFileSpan(path string, start, end uint32) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", errors.NewEngramError(errors.ReadSpanError, fmt.Sprintf("could not read %s", path), err)
	}
	lines := splitLines(string(content))
	if int(end) > len(lines) {
		return "", errors.New(errors.SpanOutOfBounds,
			fmt.Sprintf("requested range %d-%d exceeds file length %d", start, end, len(lines)))
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

// splitLines splits on newlines without counting a trailing newline as an
// extra empty line, and tolerates CRLF.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// ResolveTarget turns an explain target into query anchors. In anchor mode
// the target is taken verbatim. A file-range target is read from disk,
// fingerprinted, and queried under both its content fingerprint and its
// span location anchor, so agent-asserted span links are reachable even
// when the content now differs.
func ResolveTarget(cwd, target string, anchorMode bool) ([]string, error) {
	if anchorMode {
		return []string{target}, nil
	}

	file, start, end, err := ParseFileRangeTarget(target)
	if err != nil {
		return nil, err
	}
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, file)
	}
	text, err := ReadFileSpan(path, start, end)
	if err != nil {
		return nil, err
	}
	fingerprint := anchor.FingerprintText(text, anchor.Options{})
	return []string{fingerprint, index.SpanAnchor(file, start, end)}, nil
}
