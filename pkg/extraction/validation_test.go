package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taleweave/memoryd/pkg/graph"
)

func TestValidateDropsEdgeWithMissingEndpoint(t *testing.T) {
	g := graph.New()
	g.AddOrUpdateNode("character_a", graph.TypeCharacter, "A", "", nil)

	v := NewValidator()
	cleaned, counters := v.Validate(g, Delta{
		EdgesToAdd: []EdgeAdd{{Source: "character_a", Target: "character_ghost", Relationship: "knows"}},
	})
	assert.Empty(t, cleaned.EdgesToAdd)
	assert.Equal(t, 1, counters.EdgesDroppedMissingEndpoint)
}

func TestValidateAllowsEdgeToNodeCreatedInSameDelta(t *testing.T) {
	g := graph.New()
	g.AddOrUpdateNode("character_a", graph.TypeCharacter, "A", "", nil)

	v := NewValidator()
	cleaned, counters := v.Validate(g, Delta{
		NodesToUpdate: []NodeUpdate{{NodeID: "character_b", Type: graph.TypeCharacter}},
		EdgesToAdd:    []EdgeAdd{{Source: "character_a", Target: "character_b", Relationship: "knows"}},
	})
	assert.Len(t, cleaned.EdgesToAdd, 1)
	assert.Equal(t, 0, counters.EdgesDroppedMissingEndpoint)
}

func TestValidateInfersTypeFromAttributes(t *testing.T) {
	v := NewValidator()
	g := graph.New()
	cleaned, counters := v.Validate(g, Delta{
		NodesToUpdate: []NodeUpdate{{NodeID: "mystic_forest", Attributes: map[string]any{"danger_level": "high"}}},
	})
	assert.Equal(t, graph.TypeLocation, cleaned.NodesToUpdate[0].Type)
	assert.Equal(t, 1, counters.NodesTypeInferred)
}

func TestValidateDeduplicatesWithinDelta(t *testing.T) {
	v := NewValidator()
	g := graph.New()
	cleaned, counters := v.Validate(g, Delta{
		NodesToUpdate: []NodeUpdate{
			{NodeID: "character_a", Type: graph.TypeCharacter},
			{NodeID: "character_a", Type: graph.TypeCharacter},
		},
	})
	assert.Len(t, cleaned.NodesToUpdate, 1)
	assert.Equal(t, 1, counters.Deduplicated)
}

func TestNormalizeEndpointDefaultsToUnknownType(t *testing.T) {
	assert.Equal(t, "unknown_bob", normalizeEndpoint("Bob"))
	assert.Equal(t, "character_bob", normalizeEndpoint("character_Bob"))
	assert.Equal(t, "*", normalizeEndpoint("*"))
}
