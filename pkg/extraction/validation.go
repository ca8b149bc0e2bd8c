package extraction

import (
	"strings"

	"github.com/taleweave/memoryd/pkg/graph"
)

// ValidationCounters records why entries were dropped or normalized, for
// observability — it never causes the caller to treat validation as having
// failed (spec §4.14: "ValidationLayer never throws").
type ValidationCounters struct {
	EdgesDroppedMissingEndpoint int
	NodesTypeInferred           int
	Deduplicated                int
}

// Validator filters a proposed delta against the current graph state.
type Validator struct{}

// NewValidator returns a ValidationLayer instance. It holds no state: every
// call is independent, so a single Validator can be shared across sessions.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate cleans delta against g: normalizes ids, infers missing types,
// drops edges whose endpoints won't exist after the delta applies, and
// de-duplicates within the delta. Never returns an error.
func (v *Validator) Validate(g *graph.KnowledgeGraph, delta Delta) (Delta, ValidationCounters) {
	var counters ValidationCounters
	cleaned := Delta{}

	createdIDs := make(map[string]struct{})

	seenUpdates := make(map[string]struct{})
	for _, nu := range delta.NodesToUpdate {
		if nu.Type == "" {
			nu.Type = inferType(nu.Attributes)
			counters.NodesTypeInferred++
		}
		id := normalizeID(nu.NodeID, nu.Type)
		if _, dup := seenUpdates[id]; dup {
			counters.Deduplicated++
			continue
		}
		seenUpdates[id] = struct{}{}
		nu.NodeID = id
		cleaned.NodesToUpdate = append(cleaned.NodesToUpdate, nu)
		createdIDs[id] = struct{}{}
	}

	seenEdges := make(map[string]struct{})
	for _, ea := range delta.EdgesToAdd {
		source := normalizeEndpoint(ea.Source)
		target := normalizeEndpoint(ea.Target)

		_, sourceCreated := createdIDs[source]
		_, targetCreated := createdIDs[target]
		if !sourceCreated && !g.HasNode(source) {
			counters.EdgesDroppedMissingEndpoint++
			continue
		}
		if !targetCreated && !g.HasNode(target) {
			counters.EdgesDroppedMissingEndpoint++
			continue
		}

		key := source + "\x00" + target + "\x00" + ea.Relationship
		if _, dup := seenEdges[key]; dup {
			counters.Deduplicated++
			continue
		}
		seenEdges[key] = struct{}{}
		cleaned.EdgesToAdd = append(cleaned.EdgesToAdd, EdgeAdd{Source: source, Target: target, Relationship: ea.Relationship})
	}

	seenDeletions := make(map[string]struct{})
	for _, nd := range delta.NodesToDelete {
		id := normalizeEndpoint(nd.NodeID)
		if _, dup := seenDeletions[id]; dup {
			counters.Deduplicated++
			continue
		}
		seenDeletions[id] = struct{}{}
		nd.NodeID = id
		cleaned.NodesToDelete = append(cleaned.NodesToDelete, nd)
	}

	seenEdgeDeletions := make(map[string]struct{})
	for _, ed := range delta.EdgesToDelete {
		key := ed.Source + "\x00" + ed.Target + "\x00" + ed.Relationship
		if _, dup := seenEdgeDeletions[key]; dup {
			counters.Deduplicated++
			continue
		}
		seenEdgeDeletions[key] = struct{}{}
		cleaned.EdgesToDelete = append(cleaned.EdgesToDelete, ed)
	}

	return cleaned, counters
}

// normalizeID applies the canonical <type>_<name> rule when id doesn't
// already look canonical (i.e. doesn't start with a known type prefix).
func normalizeID(id string, entityType graph.EntityType) string {
	if looksCanonical(id) {
		return strings.ToLower(id)
	}
	return graph.CanonicalID(entityType, id)
}

// normalizeEndpoint normalizes an edge endpoint reference that may be a
// canonical id already or a bare name; bare names default to "unknown" type
// since the validator has no further context to infer from.
func normalizeEndpoint(ref string) string {
	if ref == "*" || looksCanonical(ref) {
		return strings.ToLower(ref)
	}
	return graph.CanonicalID(graph.TypeUnknown, ref)
}

var knownTypePrefixes = []graph.EntityType{
	graph.TypeCharacter, graph.TypeLocation, graph.TypeItem, graph.TypeEvent,
	graph.TypeConcept, graph.TypeOrganization, graph.TypeSkill, graph.TypeUnknown,
}

func looksCanonical(id string) bool {
	lower := strings.ToLower(id)
	for _, t := range knownTypePrefixes {
		if strings.HasPrefix(lower, string(t)+"_") {
			return true
		}
	}
	return false
}

// inferType infers an entity type from its attribute keys when the caller
// didn't specify one — e.g. presence of a "location" attribute implies the
// entity itself is a character situated there (spec §4.6 example).
func inferType(attrs map[string]any) graph.EntityType {
	if attrs == nil {
		return graph.TypeUnknown
	}
	if _, ok := attrs["location"]; ok {
		return graph.TypeCharacter
	}
	if _, ok := attrs["danger_level"]; ok {
		return graph.TypeLocation
	}
	if _, ok := attrs["value"]; ok {
		return graph.TypeItem
	}
	return graph.TypeUnknown
}
