package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"engram/internal/errors"
	"engram/internal/index"
	"engram/internal/paths"
	"engram/internal/slogutil"
	"engram/internal/tape"
	"engram/internal/version"

	"github.com/spf13/cobra"
)

var (
	globalStore bool
	verbosity   int
	quietFlag   bool
	logFormat   string
)

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "engram - evidence index for coding agent sessions",
	Long: `engram records coding agent session transcripts as immutable tapes and
indexes the code spans they touched. Every span carries a content
fingerprint, so "why does this code look like this" stays answerable
after the code moves or changes: engram explain walks the lineage
graph back through edits, moves, and deletions to the sessions that
produced them.`,
	Version:       version.Info(),
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.SetVersionTemplate("engram version {{.Version}}\n")
	rootCmd.PersistentFlags().BoolVar(&globalStore, "global", false,
		"Operate on the home-directory store instead of the repository store")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false,
		"Log errors only")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log format: text or json")
}

// newLogger builds the stderr logger for one invocation. Stdout is
// reserved for command output.
// Level precedence: --quiet/-v flags > ENGRAM_LOG env var > warn.
func newLogger() *slog.Logger {
	level := slogutil.LevelFromVerbosity(verbosity, quietFlag)
	if verbosity == 0 && !quietFlag {
		if env := os.Getenv("ENGRAM_LOG"); env != "" {
			level = slogutil.LevelFromString(env)
		}
	}
	if logFormat == "json" {
		return slogutil.NewJSONLogger(os.Stderr, level)
	}
	return slogutil.NewLogger(os.Stderr, level)
}

// printJSON writes one compact JSON document to stdout.
func printJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.NewEngramError(errors.IOError, "could not encode output", err)
	}
	fmt.Println(string(data))
	return nil
}

// store bundles the open handles over one initialized store.
type store struct {
	paths *paths.Paths
	db    *index.DB
	blobs *tape.BlobStore
}

// openStore resolves the selected store, verifies it is initialized, and
// opens the index. Callers own the returned handles.
func openStore(logger *slog.Logger) (*store, error) {
	p, err := paths.Resolve(globalStore)
	if err != nil {
		return nil, err
	}
	if err := p.RequireInitialized(); err != nil {
		return nil, err
	}
	db, err := index.Open(p.IndexPath, logger)
	if err != nil {
		return nil, errors.NewEngramError(errors.IndexError, "could not open index", err)
	}
	return &store{
		paths: p,
		db:    db,
		blobs: tape.NewBlobStore(p.TapesDir, logger),
	}, nil
}

func (s *store) Close() {
	_ = s.db.Close()
}
