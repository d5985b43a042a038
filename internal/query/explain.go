// Package query answers provenance questions against the evidence index:
// which sessions touched a span, where its content came from, and whether
// it was ever deleted. Traversal walks lineage edges backward from the
// query anchors under explicit budget knobs.
package query

import (
	"engram/internal/errors"
	"engram/internal/index"
)

// Traversal budget defaults.
const (
	MinConfidenceDefault = 0.50
	MaxFanoutDefault     = 50
	MaxEdgesDefault      = 500
	MaxDepthDefault      = 10
)

// Traversal bounds one explain walk. Zero values are not meaningful;
// start from DefaultTraversal and override per flag.
type Traversal struct {
	MinConfidence float64
	MaxFanout     int
	MaxEdges      int
	MaxDepth      int
}

// DefaultTraversal returns the stock traversal budgets.
func DefaultTraversal() Traversal {
	return Traversal{
		MinConfidence: MinConfidenceDefault,
		MaxFanout:     MaxFanoutDefault,
		MaxEdges:      MaxEdgesDefault,
		MaxDepth:      MaxDepthDefault,
	}
}

// Options selects what an explain query reports beyond the traversal.
type Options struct {
	// Forensics admits every stored edge, including location_only ones
	// below the confidence floor.
	Forensics bool
	// IncludeDeleted adds tombstone rows for every touched anchor.
	IncludeDeleted bool
}

// LineageEdge is one traversed edge in explain output.
type LineageEdge struct {
	FromAnchor    string  `json:"from_anchor"`
	ToAnchor      string  `json:"to_anchor"`
	Confidence    float64 `json:"confidence"`
	LocationDelta string  `json:"location_delta"`
	Cardinality   string  `json:"cardinality"`
	AgentLink     bool    `json:"agent_link"`
	Note          *string `json:"note"`
	StoredClass   string  `json:"stored_class"`
}

// Result is the raw outcome of an explain query. Sessions are built
// separately because they need the tape blobs, not the index.
type Result struct {
	Direct         []index.EvidenceFragment
	TouchedAnchors []string
	Lineage        []LineageEdge
	Tombstones     []index.TombstoneRow
	Truncated      bool
	TruncatedNodes []string
}

// Explain resolves direct evidence for the query anchors and walks
// lineage backward from them, breadth first. Traversal admits an edge in
// default mode only if it is lineage class and either agent-asserted or
// at the confidence floor; forensics admits everything stored. Fanout is
// capped per node, highest confidence first, and a global edge budget
// stops the whole walk. Unknown anchors yield an empty result.
func Explain(db *index.DB, anchors []string, traversal Traversal, opts Options) (*Result, error) {
	if len(anchors) == 0 {
		return nil, errors.New(errors.InvalidExplainTarget, "no anchors to explain")
	}
	store := index.NewStore(db)

	direct, err := store.Lookup(anchors)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Direct:         direct,
		Lineage:        []LineageEdge{},
		Tombstones:     []index.TombstoneRow{},
		TruncatedNodes: []string{},
	}

	visited := make(map[string]struct{}, len(anchors))
	frontier := make([]string, 0, len(anchors))
	for _, a := range anchors {
		if _, seen := visited[a]; seen {
			continue
		}
		visited[a] = struct{}{}
		frontier = append(frontier, a)
		result.TouchedAnchors = append(result.TouchedAnchors, a)
	}

walk:
	for depth := 0; depth < traversal.MaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, node := range frontier {
			edges, err := store.NeighborsBackward(node)
			if err != nil {
				return nil, err
			}
			admitted := admitEdges(edges, traversal, opts.Forensics)
			if len(admitted) > traversal.MaxFanout {
				admitted = admitted[:traversal.MaxFanout]
				result.TruncatedNodes = append(result.TruncatedNodes, node)
			}
			for _, e := range admitted {
				if len(result.Lineage) >= traversal.MaxEdges {
					result.Truncated = true
					break walk
				}
				result.Lineage = append(result.Lineage, toLineageEdge(e))
				if _, seen := visited[e.FromAnchor]; !seen {
					visited[e.FromAnchor] = struct{}{}
					next = append(next, e.FromAnchor)
					result.TouchedAnchors = append(result.TouchedAnchors, e.FromAnchor)
				}
			}
		}
		frontier = next
	}

	if opts.IncludeDeleted {
		rows, err := store.TombstonesFor(result.TouchedAnchors)
		if err != nil {
			return nil, err
		}
		if rows != nil {
			result.Tombstones = rows
		}
	}
	return result, nil
}

// admitEdges filters stored edges for traversal. NeighborsBackward already
// orders by confidence descending, so the fanout cut keeps the strongest.
func admitEdges(edges []index.StoredEdge, traversal Traversal, forensics bool) []index.StoredEdge {
	if forensics {
		return edges
	}
	var admitted []index.StoredEdge
	for _, e := range edges {
		if e.Class != index.ClassLineage {
			continue
		}
		if !index.InDefaultTraversal(e.AgentLink, e.Confidence, traversal.MinConfidence) {
			continue
		}
		admitted = append(admitted, e)
	}
	return admitted
}

func toLineageEdge(e index.StoredEdge) LineageEdge {
	out := LineageEdge{
		FromAnchor:    e.FromAnchor,
		ToAnchor:      e.ToAnchor,
		Confidence:    e.Confidence,
		LocationDelta: string(e.Delta),
		Cardinality:   string(e.Cardinality),
		AgentLink:     e.AgentLink,
		StoredClass:   string(e.Class),
	}
	if e.Note != "" {
		note := e.Note
		out.Note = &note
	}
	return out
}
