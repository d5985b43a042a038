package tape

import (
	"fmt"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"

	"engram/internal/errors"
)

// Compress encodes tape JSONL as zstd at the default level.
func Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// Decompress decodes a stored tape blob back to JSONL and verifies the
// payload is valid UTF-8.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.NewEngramError(errors.TapeDecode, "could not decompress tape blob", err)
	}
	if !utf8.Valid(out) {
		return nil, errors.New(errors.TapeDecode, "tape blob is not valid UTF-8")
	}
	return out, nil
}
