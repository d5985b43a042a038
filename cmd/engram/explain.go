package main

import (
	"os"

	"engram/internal/errors"
	"engram/internal/index"
	"engram/internal/query"

	"github.com/spf13/cobra"
)

var (
	explainAnchor         bool
	explainMinConfidence  float64
	explainMaxFanout      int
	explainMaxEdges       int
	explainDepth          int
	explainForensics      bool
	explainIncludeDeleted bool
	explainPretty         bool
)

var explainCmd = &cobra.Command{
	Use:   "explain <file:start-end>",
	Short: "Explain where a span of code came from",
	Long: `Resolves a file line range (or, with --anchor, a raw anchor hash)
against the evidence index and reports which sessions touched it, the
lineage edges leading back to earlier versions of the span, and, with
--include-deleted, tombstones for deleted ancestors.

Default traversal follows lineage-class edges that are agent-asserted
or at the confidence floor; --forensics admits every stored edge.`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().BoolVar(&explainAnchor, "anchor", false,
		"Treat the target as a raw anchor hash instead of a file range")
	explainCmd.Flags().Float64Var(&explainMinConfidence, "min-confidence", query.MinConfidenceDefault,
		"Confidence floor for traversed edges")
	explainCmd.Flags().IntVar(&explainMaxFanout, "max-fanout", query.MaxFanoutDefault,
		"Edges followed per node, highest confidence first")
	explainCmd.Flags().IntVar(&explainMaxEdges, "max-edges", query.MaxEdgesDefault,
		"Total edge budget for the walk")
	explainCmd.Flags().IntVar(&explainDepth, "depth", query.MaxDepthDefault,
		"Maximum traversal depth")
	explainCmd.Flags().BoolVar(&explainForensics, "forensics", false,
		"Admit every stored edge, including location-only ones")
	explainCmd.Flags().BoolVar(&explainIncludeDeleted, "include-deleted", false,
		"Report tombstones for touched anchors")
	explainCmd.Flags().BoolVar(&explainPretty, "pretty", false,
		"Render a human-readable tiered view instead of JSON")
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	target := args[0]

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	cwd, err := os.Getwd()
	if err != nil {
		return errors.NewEngramError(errors.IOError, "could not determine working directory", err)
	}

	anchors, err := query.ResolveTarget(cwd, target, explainAnchor)
	if err != nil {
		return err
	}

	traversal := query.Traversal{
		MinConfidence: explainMinConfidence,
		MaxFanout:     explainMaxFanout,
		MaxEdges:      explainMaxEdges,
		MaxDepth:      explainDepth,
	}
	result, err := query.Explain(st.db, anchors, traversal, query.Options{
		Forensics:      explainForensics,
		IncludeDeleted: explainIncludeDeleted,
	})
	if err != nil {
		return err
	}

	touches, err := query.CollectTouches(index.NewStore(st.db), result.Direct, result.TouchedAnchors)
	if err != nil {
		return errors.NewEngramError(errors.IndexError, "could not collect touches", err)
	}
	sessions, err := query.BuildSessions(st.blobs, touches)
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []query.Session{}
	}

	if explainPretty {
		query.RenderPretty(os.Stdout, target, result, sessions)
		return nil
	}

	return printJSON(map[string]any{
		"query": map[string]any{
			"target":          target,
			"anchor_mode":     explainAnchor,
			"anchors":         anchors,
			"min_confidence":  explainMinConfidence,
			"max_fanout":      explainMaxFanout,
			"max_edges":       explainMaxEdges,
			"depth":           explainDepth,
			"forensics":       explainForensics,
			"include_deleted": explainIncludeDeleted,
		},
		"sessions":        sessions,
		"lineage":         result.Lineage,
		"tombstones":      result.Tombstones,
		"truncated":       result.Truncated,
		"truncated_nodes": result.TruncatedNodes,
	})
}
