package main

import (
	"fmt"
	"os"

	"engram/internal/errors"
	"engram/internal/tape"

	"github.com/spf13/cobra"
)

var (
	adaptersConformance string
	adaptersAdapter     string
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List the harness adapters",
	Long: `Prints the adapter registry: where each harness keeps its session
artifacts, how its rows map onto tape events, and what evidence
coverage the mapping achieves.

--conformance converts a sample artifact and validates every output row
against the tape contract.`,
	Args: cobra.NoArgs,
	RunE: runAdapters,
}

func init() {
	adaptersCmd.Flags().StringVar(&adaptersConformance, "conformance", "",
		"Sample artifact to convert and validate")
	adaptersCmd.Flags().StringVar(&adaptersAdapter, "adapter", "",
		"Adapter for the conformance sample (auto to detect)")
	rootCmd.AddCommand(adaptersCmd)
}

func runAdapters(cmd *cobra.Command, args []string) error {
	payload := map[string]any{"adapters": tape.Registry()}

	if adaptersConformance != "" {
		input, err := os.ReadFile(adaptersConformance)
		if err != nil {
			return errors.NewEngramError(errors.IOError,
				fmt.Sprintf("could not read %s", adaptersConformance), err)
		}
		id, auto, err := tape.ParseAdapterChoice(adaptersAdapter)
		if err != nil {
			return err
		}
		if auto {
			id, _, err = tape.DetectAdapter(adaptersConformance, input)
			if err != nil {
				return err
			}
		}
		report, err := tape.RunConformance(id, input)
		if err != nil {
			return err
		}
		payload["conformance"] = report
	} else if adaptersAdapter != "" {
		return errors.New(errors.Usage, "--adapter requires --conformance")
	}

	return printJSON(payload)
}
