package main

import (
	"fmt"
	"testing"

	"engram/internal/errors"
)

func TestCliCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{
			name: "engram error",
			err:  errors.New(errors.TapeNotFound, "tape `abc` not found"),
			want: errors.TapeNotFound,
		},
		{
			name: "wrapped engram error",
			err:  fmt.Errorf("running ingest: %w", errors.New(errors.ConfigError, "bad config")),
			want: errors.ConfigError,
		},
		{
			name: "plain error is a usage failure",
			err:  fmt.Errorf("unknown flag: --frobnicate"),
			want: errors.Usage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cliCode(tt.err); got != tt.want {
				t.Errorf("Expected code %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTapeTimestampMissingSortsLast(t *testing.T) {
	ts := "2025-08-25T10:00:00Z"
	with := tapeListEntry{Timestamp: &ts}
	without := tapeListEntry{}

	if tapeTimestamp(with) != ts {
		t.Errorf("Expected %q, got %q", ts, tapeTimestamp(with))
	}
	if tapeTimestamp(without) != "" {
		t.Errorf("Expected empty timestamp, got %q", tapeTimestamp(without))
	}
	// Descending comparison puts the dated tape first.
	if !(tapeTimestamp(with) > tapeTimestamp(without)) {
		t.Error("Expected dated tape to sort before undated tape")
	}
}
