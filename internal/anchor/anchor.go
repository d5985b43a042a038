// Package anchor computes content fingerprints for code spans.
//
// A span's text is tokenized, hashed into overlapping k-grams, and winnowed
// down to a small set of selected hashes. Spans whose token content largely
// overlaps keep overlapping fingerprints even when surrounding text shifts,
// which is what lets the index link successive versions of a span without
// interpreting the code.
package anchor

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	// DefaultKGram is the number of tokens per k-gram.
	DefaultKGram = 5
	// DefaultWindow is the winnowing window size in k-grams.
	DefaultWindow = 4
)

// Options control fingerprint granularity. Zero values take the defaults.
// Fingerprints produced with different options are still parseable but
// compare with low similarity, so options should stay fixed per index.
type Options struct {
	KGram  int
	Window int
}

func (o Options) withDefaults() Options {
	if o.KGram < 1 {
		o.KGram = DefaultKGram
	}
	if o.Window < 1 {
		o.Window = DefaultWindow
	}
	return o
}

// Tokenize splits text into normalized tokens. Runs of alphanumerics and
// underscores form one token, lowered in ASCII only; every other
// non-whitespace character is its own token; whitespace only separates.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	for _, ch := range text {
		if isWordChar(ch) {
			current.WriteRune(lowerASCII(ch))
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
		if !unicode.IsSpace(ch) {
			tokens = append(tokens, string(ch))
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func isWordChar(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.IsNumber(ch)
}

func lowerASCII(ch rune) rune {
	if ch >= 'A' && ch <= 'Z' {
		return ch + ('a' - 'A')
	}
	return ch
}

// KGramHashes hashes each window of k consecutive tokens. Tokens are joined
// with an unlikely separator byte before hashing so adjacent tokens cannot
// collide by concatenation. Fewer than k tokens yields nil.
func KGramHashes(tokens []string, k int) []uint64 {
	if k < 1 || len(tokens) < k {
		return nil
	}
	hashes := make([]uint64, 0, len(tokens)-k+1)
	for i := 0; i+k <= len(tokens); i++ {
		joined := strings.Join(tokens[i:i+k], "\x1f")
		digest := sha256.Sum256([]byte(joined))
		hashes = append(hashes, binary.BigEndian.Uint64(digest[:8]))
	}
	return hashes
}

// Winnow selects fingerprint features from the k-gram hash sequence. Each
// sliding window of the given size contributes its minimum hash, ties going
// to the rightmost position. Selections are deduplicated globally in
// first-selected order. Sequences no longer than the window contribute all
// distinct hashes in first-seen order.
func Winnow(kgrams []uint64, window int) []uint64 {
	if len(kgrams) == 0 {
		return nil
	}
	if window < 1 {
		window = 1
	}
	seen := make(map[uint64]struct{})
	var selected []uint64
	if len(kgrams) <= window {
		for _, h := range kgrams {
			if _, ok := seen[h]; !ok {
				seen[h] = struct{}{}
				selected = append(selected, h)
			}
		}
		return selected
	}
	for start := 0; start+window <= len(kgrams); start++ {
		slice := kgrams[start : start+window]
		minIdx := 0
		for i, h := range slice {
			if h <= slice[minIdx] {
				minIdx = i
			}
		}
		h := slice[minIdx]
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			selected = append(selected, h)
		}
	}
	return selected
}

// FingerprintText fingerprints a span's text. Texts too short to produce
// any winnowed feature fall back to a single hash of the whole text so that
// every span gets a stable, comparable anchor.
func FingerprintText(text string, opts Options) string {
	opts = opts.withDefaults()
	tokens := Tokenize(text)
	kgrams := KGramHashes(tokens, opts.KGram)
	features := Winnow(kgrams, opts.Window)
	if len(features) == 0 {
		digest := sha256.Sum256([]byte(text))
		return fmt.Sprintf("fallback:%d", binary.BigEndian.Uint64(digest[:8]))
	}
	parts := make([]string, len(features))
	for i, h := range features {
		parts[i] = fmt.Sprintf("%016x", h)
	}
	return "winnow:" + strings.Join(parts, ",")
}

// ParseFingerprint decodes a fingerprint string into its feature set.
// Accepts the winnow and fallback forms plus bare 64-hex-digit SHA-256
// strings written by older recorders, whose first 16 hex digits become a
// single feature. Reports false for anything else.
func ParseFingerprint(s string) (map[uint64]struct{}, bool) {
	if rest, ok := strings.CutPrefix(s, "winnow:"); ok {
		set := make(map[uint64]struct{})
		for _, part := range strings.Split(rest, ",") {
			if part == "" {
				continue
			}
			v, err := strconv.ParseUint(part, 16, 64)
			if err != nil {
				return nil, false
			}
			set[v] = struct{}{}
		}
		if len(set) == 0 {
			return nil, false
		}
		return set, true
	}
	if rest, ok := strings.CutPrefix(s, "fallback:"); ok {
		v, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return nil, false
		}
		return map[uint64]struct{}{v: {}}, true
	}
	if len(s) == 64 && isHex(s) {
		v, err := strconv.ParseUint(s[:16], 16, 64)
		if err != nil {
			return nil, false
		}
		return map[uint64]struct{}{v: {}}, true
	}
	return nil, false
}

func isHex(s string) bool {
	for _, ch := range s {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}

// Similarity is the Jaccard overlap of two fingerprints' feature sets.
// Reports false when either side does not parse.
func Similarity(a, b string) (float64, bool) {
	setA, ok := ParseFingerprint(a)
	if !ok {
		return 0, false
	}
	setB, ok := ParseFingerprint(b)
	if !ok {
		return 0, false
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0, false
	}
	inter := 0
	for h := range setA {
		if _, ok := setB[h]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0, false
	}
	return float64(inter) / float64(union), true
}
