package query

import (
	"encoding/json"
	"fmt"
	"io"

	"engram/internal/index"
)

// Tier is the presentation bucket of a lineage edge. Tiers never affect
// traversal; they only label edges for human output.
type Tier string

const (
	TierEdit          Tier = "edit"
	TierMove          Tier = "move"
	TierRelated       Tier = "related"
	TierHidden        Tier = "hidden"
	TierForensicsOnly Tier = "forensics_only"
)

// TierFor buckets an edge by confidence and delta. location_only edges are
// forensics material regardless of confidence.
func TierFor(confidence float64, moved, locationOnly bool) Tier {
	switch {
	case locationOnly:
		return TierForensicsOnly
	case confidence >= 0.90 && !moved:
		return TierEdit
	case confidence >= 0.85 && moved:
		return TierMove
	case confidence >= MinConfidenceDefault:
		return TierRelated
	default:
		return TierHidden
	}
}

// RenderPretty writes the human-readable explain view: session roll-up,
// tiered lineage, and tombstones when present.
func RenderPretty(w io.Writer, target string, result *Result, sessions []Session) {
	fmt.Fprintf(w, "target: %s\n", target)
	fmt.Fprintf(w, "sessions: %d\n", len(sessions))
	for _, session := range sessions {
		fmt.Fprintf(w, "- tape=%s touches=%d\n", session.TapeID, session.TouchCount)
	}

	fmt.Fprintln(w, "lineage:")
	for _, edge := range result.Lineage {
		tier := TierFor(edge.Confidence,
			edge.LocationDelta == string(index.DeltaMoved),
			edge.StoredClass == string(index.ClassLocationOnly))
		fmt.Fprintf(w, "- %s -> %s conf=%.2f tier=%s agent_link=%t\n",
			edge.FromAnchor, edge.ToAnchor, edge.Confidence, tier, edge.AgentLink)
	}

	if len(result.Tombstones) > 0 {
		fmt.Fprintln(w, "tombstones:")
		for _, tombstone := range result.Tombstones {
			if line, err := json.Marshal(tombstone); err == nil {
				fmt.Fprintf(w, "- %s\n", line)
			}
		}
	}
}
