// Package extraction implements the graph-update extraction pipeline:
// LLM-driven bootstrap and per-turn delta extraction (LLMUpdateAgent), a
// deterministic fallback (LocalRuleExtractor), free-text entity detection
// (PerceptionExtractor), and delta normalization (ValidationLayer).
package extraction

import (
	"strings"

	"github.com/taleweave/memoryd/pkg/graph"
)

// DeletionType classifies how a proposed node deletion should be applied
// (spec §4.8 deletion semantics).
type DeletionType string

const (
	DeletionDeath   DeletionType = "death"   // soft-delete
	DeletionLost    DeletionType = "lost"    // hard delete
	DeletionDefault DeletionType = "default" // soft-delete
)

// NodeUpdate is one entry of Delta.NodesToUpdate.
type NodeUpdate struct {
	NodeID     string
	Type       graph.EntityType // optional; "" means "no change / infer"
	Attributes map[string]any
}

// EdgeAdd is one entry of Delta.EdgesToAdd.
type EdgeAdd struct {
	Source       string
	Target       string
	Relationship string
}

// NodeDeletion is one entry of Delta.NodesToDelete.
type NodeDeletion struct {
	NodeID       string
	DeletionType DeletionType
	Reason       string
}

// EdgeDeletion is one entry of Delta.EdgesToDelete. "*" is allowed for
// Source, Target, or Relationship (wildcard match).
type EdgeDeletion struct {
	Source       string
	Target       string
	Relationship string
	Reason       string
}

// Delta is the execution-format set of proposed graph mutations for a
// single turn (spec §4.4#2). Any empty slice means "no change" for that
// field.
type Delta struct {
	NodesToUpdate []NodeUpdate
	EdgesToAdd    []EdgeAdd
	NodesToDelete []NodeDeletion
	EdgesToDelete []EdgeDeletion
}

// IsEmpty reports whether the delta proposes no changes at all — the
// always-succeeding fallback tail (LocalRuleExtractor) may legitimately
// produce one.
func (d Delta) IsEmpty() bool {
	return len(d.NodesToUpdate) == 0 && len(d.EdgesToAdd) == 0 &&
		len(d.NodesToDelete) == 0 && len(d.EdgesToDelete) == 0
}

// ApplyResult counts what Apply actually did, echoed back in API responses
// as grag_updates (spec §4.8 step 6).
type ApplyResult struct {
	NodesUpdated int
	EdgesAdded   int
	NodesDeleted int
	EdgesDeleted int
}

// Changed reports whether Apply actually mutated the graph — used to decide
// whether the entities mirror needs rewriting (spec §6.3: "Written whenever
// the graph changes").
func (r ApplyResult) Changed() bool {
	return r.NodesUpdated > 0 || r.EdgesAdded > 0 || r.NodesDeleted > 0 || r.EdgesDeleted > 0
}

// deriveName recovers a display name for a node first created by a delta.
// LocalRuleExtractor and LLMUpdateAgent deltas carry no separate name field
// (spec §4.4#2's nodes_to_update is {node_id, type?, attributes}), but
// LocalRuleExtractor stashes the display name under attributes["name"]; fall
// back to the name fragment canonicalized into the id itself.
func deriveName(nodeID string, attrs map[string]any) string {
	if v, ok := attrs["name"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if _, rest, ok := strings.Cut(nodeID, "_"); ok && rest != "" {
		return strings.ReplaceAll(rest, "_", " ")
	}
	return nodeID
}

// Apply mutates g according to the validated delta and returns counters.
// Deletion semantics: death and default soft-delete; lost hard-deletes
// (spec §4.8, §8 scenario S6).
func Apply(g *graph.KnowledgeGraph, d Delta) ApplyResult {
	var result ApplyResult

	for _, nu := range d.NodesToUpdate {
		g.AddOrUpdateNode(nu.NodeID, nu.Type, deriveName(nu.NodeID, nu.Attributes), "", nu.Attributes)
		result.NodesUpdated++
	}

	for _, ea := range d.EdgesToAdd {
		if err := g.AddEdge(ea.Source, ea.Target, ea.Relationship, nil); err == nil {
			result.EdgesAdded++
		}
	}

	for _, nd := range d.NodesToDelete {
		switch nd.DeletionType {
		case DeletionLost:
			if g.DeleteNode(nd.NodeID) {
				result.NodesDeleted++
			}
		default: // death, default, and anything unrecognized soft-delete
			if g.MarkNodeDeleted(nd.NodeID, nd.Reason) {
				result.NodesDeleted++
			}
		}
	}

	for _, ed := range d.EdgesToDelete {
		result.EdgesDeleted += g.DeleteEdge(ed.Source, ed.Target, ed.Relationship)
	}

	return result
}
