package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/memoryd/pkg/window"
)

// TestConflictResolutionScenarioS4 mirrors spec scenario S4: local T3's
// assistant text diverges from the authoritative version; authoritative
// wins.
func TestConflictResolutionScenarioS4(t *testing.T) {
	win := window.New(4, 0)
	win.Push("u1", "a1")
	win.Push("u2", "a2")
	win.Push("u3", "a3-stale")

	r := NewConflictResolver(win)
	result := r.Sync([]AuthoritativeTurn{
		{Sequence: 1, UserText: "u1", AssistantText: "a1"},
		{Sequence: 2, UserText: "u2", AssistantText: "a2"},
		{Sequence: 3, UserText: "u3", AssistantText: "a3-authoritative"},
	})

	assert.Equal(t, 1, result.ConflictsDetected)
	assert.Equal(t, 1, result.ConflictsResolved)

	turn := win.Get(3)
	require.NotNil(t, turn)
	assert.Equal(t, "a3-authoritative", turn.AssistantText)
}

func TestConflictResolutionMatchesByExternalMessageID(t *testing.T) {
	win := window.New(4, 0)
	seq, _ := win.Push("u2", "a2")
	require.True(t, win.InsertBefore(seq, "u1", "a1-stale", "ext-1"))

	r := NewConflictResolver(win)
	result := r.Sync([]AuthoritativeTurn{
		// Sequence deliberately doesn't match the local turn's sequence;
		// only ExternalMessageID should drive the match.
		{Sequence: 999, UserText: "u1", AssistantText: "a1-fixed", ExternalMessageID: "ext-1"},
	})
	assert.Equal(t, 1, result.ConflictsResolved)

	turns := win.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "a1-fixed", turns[0].AssistantText)
}

func TestConflictResolutionOutOfWindow(t *testing.T) {
	win := window.New(2, 0)
	win.Push("u1", "a1")
	win.Push("u2", "a2")
	win.Push("u3", "a3") // overflow drops sequence 1

	r := NewConflictResolver(win)
	result := r.Sync([]AuthoritativeTurn{
		{Sequence: 1, UserText: "u1", AssistantText: "a1"},
	})
	assert.Equal(t, 1, result.OutOfWindow)
}

func TestConflictResolutionNewTurn(t *testing.T) {
	win := window.New(4, 0)
	win.Push("u1", "a1")

	r := NewConflictResolver(win)
	result := r.Sync([]AuthoritativeTurn{
		{Sequence: 1, UserText: "u1", AssistantText: "a1"},
		{Sequence: 2, UserText: "u2", AssistantText: "a2"},
	})
	assert.Equal(t, 1, result.NewTurns)
	assert.Equal(t, 1, result.SyncedTurns)
}
