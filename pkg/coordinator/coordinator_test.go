package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/memoryd/pkg/extraction"
	"github.com/taleweave/memoryd/pkg/memory"
	"github.com/taleweave/memoryd/pkg/window"
)

func newTestCoordinator() (*Coordinator, *memory.SessionMemory) {
	win := window.New(4, 1)
	mem := memory.New(0)
	runner := extraction.NewRunner(nil, false) // local-only: deterministic, no network
	return New(win, mem, runner), mem
}

// TestWindowedExtractionTimingScenarioS1 uses window=4, delay=1: targets
// become ready on T2 (-> T1), T3 (-> T2) and T4 (-> T3).
func TestWindowedExtractionTimingScenarioS1(t *testing.T) {
	c, _ := newTestCoordinator()
	ctx := context.Background()

	r1, err := c.ProcessNewConversation(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, r1.TargetProcessed)

	r2, err := c.ProcessNewConversation(ctx, "u2", "a2")
	require.NoError(t, err)
	assert.True(t, r2.TargetProcessed)

	r3, err := c.ProcessNewConversation(ctx, "u3", "a3")
	require.NoError(t, err)
	assert.True(t, r3.TargetProcessed)

	r4, err := c.ProcessNewConversation(ctx, "u4", "a4")
	require.NoError(t, err)
	assert.True(t, r4.TargetProcessed)
	assert.Equal(t, int64(4), r4.NewSequence)
	assert.Equal(t, 4, r4.Window.Size)
}

// TestAtMostOneExtractionInFlight checks, using a synchronization probe
// rather than time.Sleep polling, that an extraction signals its start
// before ProcessNewConversation returns and that the in-flight flag is
// released once it completes.
func TestAtMostOneExtractionInFlight(t *testing.T) {
	c, _ := newTestCoordinator()
	probe := make(chan struct{}, 1)
	c.AttachExtractionProbe(probe)

	ctx := context.Background()
	c.ProcessNewConversation(ctx, "u1", "a1")
	c.ProcessNewConversation(ctx, "u2", "a2")

	done := make(chan struct{})
	go func() {
		c.ProcessNewConversation(ctx, "u3", "a3")
		close(done)
	}()

	select {
	case <-probe:
	case <-done:
		t.Fatal("extraction should have started before ProcessNewConversation returned")
	}
	<-done

	c.mu.Lock()
	inFlight := c.inFlight
	c.mu.Unlock()
	assert.False(t, inFlight, "in-flight flag must be released after extraction completes")
}

func TestDeletionSemanticsScenarioS6(t *testing.T) {
	mem := memory.New(0)
	mem.Graph.AddOrUpdateNode("character_npc_a", "character", "NPC A", "", nil)
	mem.Graph.AddOrUpdateNode("item_amulet", "item", "Amulet", "", nil)
	mem.Graph.AddOrUpdateNode("character_wearer", "character", "Wearer", "", nil)
	require.NoError(t, mem.Graph.AddEdge("character_wearer", "item_amulet", "wears", nil))

	applied := extraction.Apply(mem.Graph, extraction.Delta{
		NodesToDelete: []extraction.NodeDeletion{
			{NodeID: "character_npc_a", DeletionType: extraction.DeletionDeath, Reason: "slain"},
			{NodeID: "item_amulet", DeletionType: extraction.DeletionLost, Reason: "dropped"},
		},
	})

	assert.Equal(t, 2, applied.NodesDeleted)
	assert.True(t, mem.Graph.GetNode("character_npc_a").IsDeleted)
	assert.False(t, mem.Graph.HasNode("item_amulet"))
	assert.Empty(t, mem.Graph.Neighbors("character_wearer"))
}
