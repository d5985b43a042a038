package main

import (
	"sort"

	"engram/internal/tape"

	"github.com/spf13/cobra"
)

var tapesCmd = &cobra.Command{
	Use:   "tapes",
	Short: "List the recorded tapes",
	Long: `Lists every tape blob in the store with its size, event count, and the
metadata of its first meta event. Newest sessions first.`,
	Args: cobra.NoArgs,
	RunE: runTapes,
}

func init() {
	rootCmd.AddCommand(tapesCmd)
}

// tapeListEntry is one row of the tapes listing.
type tapeListEntry struct {
	TapeID          string         `json:"tape_id"`
	Path            string         `json:"path"`
	CompressedBytes int64          `json:"compressed_bytes"`
	EventCount      int            `json:"event_count"`
	Timestamp       *string        `json:"timestamp"`
	Meta            map[string]any `json:"meta"`
}

func runTapes(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := st.blobs.List()
	if err != nil {
		return err
	}

	entries := make([]tapeListEntry, 0, len(ids))
	for _, tapeID := range ids {
		content, err := st.blobs.Read(tapeID)
		if err != nil {
			return err
		}
		size, err := st.blobs.Size(tapeID)
		if err != nil {
			return err
		}
		events, _, err := tape.ParseEvents(content)
		if err != nil {
			return err
		}

		entry := tapeListEntry{
			TapeID:          tapeID,
			Path:            st.blobs.Path(tapeID),
			CompressedBytes: size,
			EventCount:      len(events),
			Meta:            tape.ExtractMeta(events),
		}
		if ts, ok := entry.Meta["timestamp"].(string); ok {
			entry.Timestamp = &ts
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if ta, tb := tapeTimestamp(a), tapeTimestamp(b); ta != tb {
			return ta > tb
		}
		return a.EventCount > b.EventCount
	})

	return printJSON(map[string]any{"tapes": entries})
}

func tapeTimestamp(e tapeListEntry) string {
	if e.Timestamp == nil {
		return ""
	}
	return *e.Timestamp
}
