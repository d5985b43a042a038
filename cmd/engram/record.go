package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"engram/internal/errors"
	"engram/internal/ingest"
	"engram/internal/tape"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	recordStdin     bool
	recordLabel     string
	recordAdapter   string
	recordSessionID string
)

var recordCmd = &cobra.Command{
	Use:   "record [file]",
	Short: "Record one session transcript as a tape",
	Long: `Reads a session transcript from a file or stdin, stores it as an
immutable tape blob, and indexes the code spans it touched. Input is
tape JSONL by default; pass --adapter to convert a harness-native
session artifact first (auto picks the adapter by probing).

Recording the same content twice is a no-op: the tape id is the content
hash. If the blob exists but the index has no record of it, the index
side is recovered.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().BoolVar(&recordStdin, "stdin", false,
		"Read the transcript from stdin")
	recordCmd.Flags().StringVar(&recordLabel, "label", "",
		"Label attached to this recording")
	recordCmd.Flags().StringVar(&recordAdapter, "adapter", "",
		"Convert harness-native input with this adapter (auto to detect); omit for tape JSONL")
	recordCmd.Flags().StringVar(&recordSessionID, "session-id", "",
		"Session id for this recording (generated when omitted)")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	if recordStdin && len(args) > 0 {
		return errors.New(errors.Usage, "use either `engram record --stdin` or `engram record <file>`")
	}
	if !recordStdin && len(args) == 0 {
		return errors.New(errors.Usage, "expected a transcript file or --stdin")
	}

	var raw []byte
	var err error
	sourcePath := ""
	mode := "stdin"
	if recordStdin {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return errors.NewEngramError(errors.IOError, "could not read stdin", err)
		}
	} else {
		sourcePath = args[0]
		mode = "file"
		raw, err = os.ReadFile(sourcePath)
		if err != nil {
			return errors.NewEngramError(errors.IOError, fmt.Sprintf("could not read %s", sourcePath), err)
		}
	}

	content := raw
	adapterUsed := ""
	if recordAdapter != "" {
		id, auto, err := tape.ParseAdapterChoice(recordAdapter)
		if err != nil {
			return err
		}
		if auto {
			id, content, err = tape.DetectAdapter(sourcePath, raw)
		} else {
			content, err = tape.ConvertWithAdapter(id, raw)
		}
		if err != nil {
			return err
		}
		adapterUsed = string(id)
	}

	sessionID := recordSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	recorded := map[string]any{
		"session_id": sessionID,
		"mode":       mode,
	}
	if sourcePath != "" {
		recorded["file"] = sourcePath
	}
	if recordLabel != "" {
		recorded["label"] = recordLabel
	}
	if adapterUsed != "" {
		recorded["adapter"] = adapterUsed
	}

	return recordTranscript(logger, content, recorded)
}

// recordTranscript stores and indexes one normalized tape, then prints the
// recording report.
func recordTranscript(logger *slog.Logger, content []byte, recorded map[string]any) error {
	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	events, parseIssues, err := tape.ParseEvents(content)
	if err != nil {
		return err
	}
	for _, issue := range parseIssues {
		logger.Warn("skipping malformed tape line", "line", issue.Line, "detail", issue.Detail)
	}

	tapeID := tape.TapeID(content)
	tapeFileExists := st.blobs.Exists(tapeID)

	pipeline := ingest.NewPipeline(st.db, logger)
	result, err := pipeline.IngestTape(tapeID, events)
	if err != nil {
		return errors.NewEngramError(errors.IndexError, "could not index tape", err)
	}
	for _, issue := range result.Issues {
		logger.Warn("skipped event", "tape_id", tapeID, "offset", issue.Offset, "detail", issue.Detail)
	}

	compressedBytes, err := st.blobs.Write(tapeID, content)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"status":             "ok",
		"tape_id":            tapeID,
		"path":               st.blobs.Path(tapeID),
		"event_count":        len(events),
		"uncompressed_bytes": len(content),
		"compressed_bytes":   compressedBytes,
		"already_exists":     tapeFileExists && result.AlreadyIndexed,
		"already_indexed":    result.AlreadyIndexed,
		"tape_file_exists":   tapeFileExists,
		"meta":               tape.ExtractMeta(events),
		"record": map[string]any{
			"fragments_written":  result.FragmentsWritten,
			"edges_written":      result.EdgesWritten,
			"tombstones_written": result.TombstonesWritten,
		},
		"recorded_command": recorded,
	})
}
