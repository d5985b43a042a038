package main

import (
	"os"

	"engram/internal/config"
	"engram/internal/errors"
	"engram/internal/fsutil"
	"engram/internal/index"
	"engram/internal/paths"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an engram store",
	Long: `Creates the .engram/ store layout (index, tape directory, config) in the
current repository, or under the home directory with --global. Running
init on an existing store is a no-op.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	p, err := paths.Resolve(globalStore)
	if err != nil {
		return err
	}
	if err := p.EnsureLayout(); err != nil {
		return err
	}

	db, err := index.Open(p.IndexPath, logger)
	if err != nil {
		return errors.NewEngramError(errors.IndexError, "could not open index", err)
	}
	db.Close()

	created := false
	if _, err := os.Stat(p.ConfigPath); os.IsNotExist(err) {
		data, err := config.DefaultYAML(globalStore)
		if err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(p.ConfigPath, data, 0644); err != nil {
			return errors.NewEngramError(errors.IOError, "could not write default config", err)
		}
		created = true
		logger.Info("wrote default config", "path", p.ConfigPath)
	}

	return printJSON(map[string]any{
		"status":  "ok",
		"root":    p.EngramDir,
		"config":  p.ConfigPath,
		"created": created,
	})
}
