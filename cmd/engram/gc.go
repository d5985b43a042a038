package main

import (
	"sort"

	"engram/internal/errors"
	"engram/internal/index"

	"github.com/spf13/cobra"
)

var gcDryRun bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete tape blobs nothing references",
	Long: `Deletes tape blobs that neither evidence fragments nor tombstones
reference. Their registry rows are dropped with them. --dry-run reports
what would be deleted without touching anything.`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false,
		"Report deletions without performing them")
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	idx := index.NewStore(st.db)
	referenced, err := idx.ReferencedTapeIDs()
	if err != nil {
		return errors.NewEngramError(errors.IndexError, "could not query referenced tapes", err)
	}

	ids, err := st.blobs.List()
	if err != nil {
		return err
	}

	deleted := []string{}
	kept := 0
	for _, tapeID := range ids {
		if _, ok := referenced[tapeID]; ok {
			kept++
			continue
		}
		if !gcDryRun {
			if err := st.blobs.Remove(tapeID); err != nil {
				return err
			}
		}
		deleted = append(deleted, tapeID)
	}

	if !gcDryRun {
		if err := idx.DeleteTapeRecords(deleted); err != nil {
			return errors.NewEngramError(errors.IndexError, "could not drop tape registry rows", err)
		}
		if len(deleted) > 0 {
			logger.Info("collected unreferenced tapes", "deleted", len(deleted), "kept", kept)
		}
	}

	sort.Strings(deleted)
	return printJSON(map[string]any{
		"status":           "ok",
		"deleted_tape_ids": deleted,
		"deleted_count":    len(deleted),
		"kept_count":       kept,
	})
}
