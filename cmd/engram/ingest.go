package main

import (
	"os"
	"path/filepath"

	"engram/internal/config"
	"engram/internal/errors"
	"engram/internal/index"
	"engram/internal/ingest"
	"engram/internal/paths"
	"engram/internal/tape"

	"github.com/spf13/cobra"
)

var (
	ingestAdapter       string
	ingestPath          string
	ingestDiscover      bool
	ingestLinkThreshold float64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Scan configured sources and index new session transcripts",
	Long: `Resolves the configured source paths and globs, converts any
harness-native session artifacts, and indexes every transcript not yet
in the store. Unchanged files are skipped via a content-hash cursor, so
repeated runs only pay for what changed.

--path adds a one-off source for this run; --discover reports what each
adapter's artifact paths currently match without ingesting anything.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestAdapter, "adapter", "",
		"Adapter for the --path source (auto to detect)")
	ingestCmd.Flags().StringVar(&ingestPath, "path", "",
		"Extra source path or glob for this run")
	ingestCmd.Flags().BoolVar(&ingestDiscover, "discover", false,
		"Report adapter artifact matches without ingesting")
	ingestCmd.Flags().Float64Var(&ingestLinkThreshold, "link-threshold", index.LinkThresholdDefault,
		"Confidence floor for storing edit edges as lineage")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	home, err := paths.HomeDir()
	if err != nil {
		return err
	}

	if ingestDiscover {
		overrides, err := config.LoadAdapterOverrides(
			filepath.Join(home, ".engram", config.AdapterOverridesName))
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"status":     "ok",
			"discovered": ingest.DiscoverArtifacts(overrides, home),
		})
	}

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	cwd, err := os.Getwd()
	if err != nil {
		return errors.NewEngramError(errors.IOError, "could not determine working directory", err)
	}

	userCfg, err := paths.UserConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadEffective(cwd, paths.At(cwd).ConfigPath, userCfg)
	if err != nil {
		return err
	}

	sources := cfg.Sources
	if ingestPath != "" {
		id, _, err := tape.ParseAdapterChoice(ingestAdapter)
		if err != nil {
			return err
		}
		sources = append(sources, config.SourceSpec{Path: ingestPath, Adapter: id})
	} else if ingestAdapter != "" {
		return errors.New(errors.Usage, "--adapter requires --path")
	}

	if len(sources) == 0 {
		return errors.New(errors.ConfigError,
			"no ingest sources configured; add sources in .engram/config.yml or ~/.engram/config.yml")
	}

	candidates, err := ingest.ResolveSources(cwd, home, sources, cfg.Exclude)
	if err != nil {
		return err
	}

	// The cache tree is rebuildable and may have been wiped since init.
	if err := os.MkdirAll(st.paths.CursorsDir, 0755); err != nil {
		return errors.NewEngramError(errors.IOError, "could not create cursor directory", err)
	}

	pipeline := ingest.NewPipeline(st.db, logger)
	pipeline.SetLinkThreshold(ingestLinkThreshold)
	ingester := ingest.NewIngester(pipeline, st.blobs, logger)

	summary, err := ingester.IngestSources(candidates,
		filepath.Join(st.paths.CursorsDir, ingest.StateFileName))
	if err != nil {
		return err
	}
	return printJSON(summary)
}
