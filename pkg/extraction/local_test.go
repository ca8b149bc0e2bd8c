package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/memoryd/pkg/graph"
)

func TestLocalRuleExtractorBracketDirective(t *testing.T) {
	e := NewLocalRuleExtractor()
	delta, err := e.Extract(context.Background(), "", "You arrive at [location: Crystal Cave], shivering.")
	require.NoError(t, err)
	require.Len(t, delta.NodesToUpdate, 1)
	assert.Equal(t, graph.TypeLocation, delta.NodesToUpdate[0].Type)
	assert.Equal(t, "location_crystal_cave", delta.NodesToUpdate[0].NodeID)
}

func TestLocalRuleExtractorCapitalizedPhrase(t *testing.T) {
	e := NewLocalRuleExtractor()
	delta, err := e.Extract(context.Background(), "", "Seraphina Nightshade draws her blade.")
	require.NoError(t, err)
	require.Len(t, delta.NodesToUpdate, 1)
	assert.Equal(t, "character_seraphina_nightshade", delta.NodesToUpdate[0].NodeID)
}

func TestLocalRuleExtractorNeverProducesEdges(t *testing.T) {
	e := NewLocalRuleExtractor()
	delta, err := e.Extract(context.Background(), "", "[character: Mira] greets [character: Tomas] near the Iron Gate.")
	require.NoError(t, err)
	assert.Empty(t, delta.EdgesToAdd)
}

func TestLocalRuleExtractorDeduplicates(t *testing.T) {
	e := NewLocalRuleExtractor()
	delta, err := e.Extract(context.Background(), "", "[location: Iron Gate] looms. The Iron Gate creaks open.")
	require.NoError(t, err)
	ids := make(map[string]int)
	for _, nu := range delta.NodesToUpdate {
		ids[nu.NodeID]++
	}
	for id, count := range ids {
		assert.Equal(t, 1, count, "id %s counted more than once", id)
	}
}
