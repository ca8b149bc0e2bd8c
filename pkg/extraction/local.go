package extraction

import (
	"context"
	"regexp"
	"strings"

	"github.com/taleweave/memoryd/pkg/graph"
)

// bracketDirective matches authoring directives the assistant text may
// contain, e.g. "[character: Seraphina joins the party]" or
// "[location: Crystal Cave]" — a convention carried over from the
// bracketed-directive source pattern this extractor is grounded on.
var bracketDirective = regexp.MustCompile(`(?i)\[(character|location|item|event|organization|concept|skill)\s*:\s*([^\]]+)\]`)

// capitalizedPhrase is a conservative named-entity heuristic: two or more
// consecutive capitalized words, which in narrative prose usually denotes a
// proper noun (a character or place name).
var capitalizedPhrase = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)\b`)

// LocalRuleExtractor is the deterministic fallback used when the LLM agent
// is disabled or fails (spec §4.5). It never introduces edges between
// entities it did not itself just create in the same delta, so it can
// never invent a relationship between two pre-existing, unrelated nodes —
// the correctness bar the spec requires ("never introduces invented
// endpoints; may be conservative").
type LocalRuleExtractor struct{}

// NewLocalRuleExtractor returns a LocalRuleExtractor. It holds no state.
func NewLocalRuleExtractor() *LocalRuleExtractor {
	return &LocalRuleExtractor{}
}

// Extract produces a delta from the assistant's reply alone, following the
// same output schema as LLMUpdateAgent's per-turn extraction (spec §4.4#2).
// It never fails — the error return exists only so it satisfies the same
// shape the fallback chain (runExtraction) dispatches through.
func (e *LocalRuleExtractor) Extract(_ context.Context, userText, assistantText string) (Delta, error) {
	var delta Delta
	seen := make(map[string]struct{})

	for _, m := range bracketDirective.FindAllStringSubmatch(assistantText, -1) {
		entityType := graph.EntityType(strings.ToLower(m[1]))
		name := strings.TrimSpace(m[2])
		if name == "" {
			continue
		}
		id := graph.CanonicalID(entityType, name)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		delta.NodesToUpdate = append(delta.NodesToUpdate, NodeUpdate{
			NodeID:     id,
			Type:       entityType,
			Attributes: map[string]any{"name": name},
		})
	}

	prose := bracketDirective.ReplaceAllString(assistantText, " ")
	for _, m := range capitalizedPhrase.FindAllString(prose, -1) {
		id := graph.CanonicalID(graph.TypeCharacter, m)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		delta.NodesToUpdate = append(delta.NodesToUpdate, NodeUpdate{
			NodeID:     id,
			Type:       graph.TypeCharacter,
			Attributes: map[string]any{"name": m},
		})
	}

	return delta, nil
}
