package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/memoryd/pkg/graph"
)

func TestPerceptionExtractorDetect(t *testing.T) {
	g := graph.New()
	g.AddOrUpdateNode("character_seraphina", graph.TypeCharacter, "Seraphina", "", nil)
	g.AddOrUpdateNode("location_crystal_cave", graph.TypeLocation, "Crystal Cave", "", nil)
	g.AddOrUpdateNode("item_amulet", graph.TypeItem, "Amulet", "", nil)
	g.MarkNodeDeleted("item_amulet", "lost")

	p := NewPerceptionExtractor()
	detections := p.Detect("Seraphina walked into the Crystal Cave carrying an amulet.", g)

	require.Len(t, detections, 2)
	ids := []string{detections[0].EntityID, detections[1].EntityID}
	assert.Contains(t, ids, "character_seraphina")
	assert.Contains(t, ids, "location_crystal_cave")
	assert.NotContains(t, ids, "item_amulet", "soft-deleted entities are excluded from detection")
}

func TestPerceptionExtractorNoMentions(t *testing.T) {
	g := graph.New()
	g.AddOrUpdateNode("character_seraphina", graph.TypeCharacter, "Seraphina", "", nil)

	p := NewPerceptionExtractor()
	assert.Empty(t, p.Detect("An entirely unrelated sentence.", g))
}
