package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/memoryd/pkg/graph"
)

func TestApplyNodeUpdateUpserts(t *testing.T) {
	g := graph.New()
	result := Apply(g, Delta{
		NodesToUpdate: []NodeUpdate{{NodeID: "character_seraphina", Type: graph.TypeCharacter, Attributes: map[string]any{"mood": "wary"}}},
	})
	assert.Equal(t, 1, result.NodesUpdated)
	require.True(t, g.HasNode("character_seraphina"))
}

func TestApplyEdgeAddRequiresBothEndpoints(t *testing.T) {
	g := graph.New()
	g.AddOrUpdateNode("character_a", graph.TypeCharacter, "A", "", nil)

	result := Apply(g, Delta{
		EdgesToAdd: []EdgeAdd{{Source: "character_a", Target: "character_b", Relationship: "knows"}},
	})
	assert.Equal(t, 0, result.EdgesAdded)

	g.AddOrUpdateNode("character_b", graph.TypeCharacter, "B", "", nil)
	result = Apply(g, Delta{
		EdgesToAdd: []EdgeAdd{{Source: "character_a", Target: "character_b", Relationship: "knows"}},
	})
	assert.Equal(t, 1, result.EdgesAdded)
}

func TestApplyDeathAndDefaultSoftDelete(t *testing.T) {
	g := graph.New()
	g.AddOrUpdateNode("character_a", graph.TypeCharacter, "A", "", nil)

	result := Apply(g, Delta{
		NodesToDelete: []NodeDeletion{{NodeID: "character_a", DeletionType: DeletionDeath, Reason: "killed in battle"}},
	})
	assert.Equal(t, 1, result.NodesDeleted)
	require.True(t, g.HasNode("character_a"))
	assert.True(t, g.GetNode("character_a").IsDeleted)
}

func TestApplyLostHardDeletes(t *testing.T) {
	g := graph.New()
	g.AddOrUpdateNode("item_sword", graph.TypeItem, "Sword", "", nil)

	result := Apply(g, Delta{
		NodesToDelete: []NodeDeletion{{NodeID: "item_sword", DeletionType: DeletionLost, Reason: "dropped in the river"}},
	})
	assert.Equal(t, 1, result.NodesDeleted)
	assert.False(t, g.HasNode("item_sword"))
}

func TestApplyEdgeDeleteWildcard(t *testing.T) {
	g := graph.New()
	g.AddOrUpdateNode("character_a", graph.TypeCharacter, "A", "", nil)
	g.AddOrUpdateNode("character_b", graph.TypeCharacter, "B", "", nil)
	require.NoError(t, g.AddEdge("character_a", "character_b", "allies", nil))
	require.NoError(t, g.AddEdge("character_a", "character_b", "rivals", nil))

	result := Apply(g, Delta{
		EdgesToDelete: []EdgeDeletion{{Source: "character_a", Target: "character_b", Relationship: "*"}},
	})
	assert.Equal(t, 2, result.EdgesDeleted)
}

func TestDeltaIsEmpty(t *testing.T) {
	var d Delta
	assert.True(t, d.IsEmpty())
	d.EdgesToAdd = append(d.EdgesToAdd, EdgeAdd{Source: "a", Target: "b"})
	assert.False(t, d.IsEmpty())
}
