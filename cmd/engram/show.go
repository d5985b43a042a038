package main

import (
	"os"

	"engram/internal/tape"

	"github.com/spf13/cobra"
)

var showRaw bool

var showCmd = &cobra.Command{
	Use:   "show <tape_id>",
	Short: "Show one tape's events",
	Long: `Prints a tape's events in a compact per-event view. --raw prints the
exact uncompressed JSONL instead, byte for byte.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showRaw, "raw", false,
		"Print the exact uncompressed tape content")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	tapeID := args[0]

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	content, err := st.blobs.Read(tapeID)
	if err != nil {
		return err
	}

	if showRaw {
		_, err := os.Stdout.Write(content)
		return err
	}

	events, _, err := tape.ParseEvents(content)
	if err != nil {
		return err
	}

	rows := tape.ParseRows(content)
	compacted := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		compacted = append(compacted, tape.CompactEvent(row))
	}

	return printJSON(map[string]any{
		"tape_id":     tapeID,
		"path":        st.blobs.Path(tapeID),
		"event_count": len(events),
		"meta":        tape.ExtractMeta(events),
		"events":      compacted,
	})
}
