package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/memoryd/pkg/graph"
	"github.com/taleweave/memoryd/pkg/llm"
)

func fakeLLMServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-test", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
}

func TestBootstrapResolvesNamesToCanonicalIDsAndFlagsMainCharacter(t *testing.T) {
	body := `{
		"main_character": {"name": "Seraphina", "type": "character", "description": "a wanderer", "attributes": {}},
		"entities": [{"name": "Crystal Cave", "type": "location", "description": "a cold cavern", "attributes": {}}],
		"relationships": [{"source": "Seraphina", "target": "Crystal Cave", "relationship": "lives_in"}]
	}`
	server := fakeLLMServer(t, body)
	defer server.Close()

	gw := llm.New(llm.Config{APIKey: "test", BaseURL: server.URL, Model: "gpt-4o-mini", Timeout: 5 * time.Second})
	agent := NewAgent(gw)

	result, err := agent.Bootstrap(context.Background(), "Seraphina the wanderer", "A cold world")
	require.NoError(t, err)
	assert.Equal(t, "character_seraphina", result.MainCharacterID)
	require.Len(t, result.Entities, 2)
	require.Len(t, result.Relationships, 1)
	assert.Equal(t, "character_seraphina", result.Relationships[0].SourceName)
	assert.Equal(t, "location_crystal_cave", result.Relationships[0].TargetName)

	for _, e := range result.Entities {
		if e.ID == "character_seraphina" {
			assert.Equal(t, true, e.Attributes["is_main_character"])
		}
	}
}

func TestBootstrapDropsRelationshipWithUnresolvedName(t *testing.T) {
	body := `{
		"main_character": {"name": "Seraphina", "type": "character"},
		"entities": [],
		"relationships": [{"source": "Seraphina", "target": "Ghost Town", "relationship": "haunts"}]
	}`
	server := fakeLLMServer(t, body)
	defer server.Close()

	gw := llm.New(llm.Config{APIKey: "test", BaseURL: server.URL, Model: "gpt-4o-mini", Timeout: 5 * time.Second})
	agent := NewAgent(gw)

	result, err := agent.Bootstrap(context.Background(), "card", "world")
	require.NoError(t, err)
	assert.Empty(t, result.Relationships)
}

func TestBootstrapReturnsFormatErrorOnInvalidJSON(t *testing.T) {
	server := fakeLLMServer(t, "not json")
	defer server.Close()

	gw := llm.New(llm.Config{APIKey: "test", BaseURL: server.URL, Model: "gpt-4o-mini", Timeout: 5 * time.Second})
	agent := NewAgent(gw)

	_, err := agent.Bootstrap(context.Background(), "card", "world")
	require.Error(t, err)
	assert.True(t, llm.IsKind(err, llm.KindFormat))
}

func TestAgentExtractConvertsRawDelta(t *testing.T) {
	body := `{
		"nodes_to_update": [{"node_id": "character_a", "type": "character", "attributes": {"mood": "tense"}}],
		"edges_to_add": [{"source": "character_a", "target": "character_b", "relationship": "distrusts"}],
		"nodes_to_delete": [{"node_id": "item_lantern", "deletion_type": "lost", "reason": "dropped in the river"}],
		"edges_to_delete": []
	}`
	server := fakeLLMServer(t, body)
	defer server.Close()

	gw := llm.New(llm.Config{APIKey: "test", BaseURL: server.URL, Model: "gpt-4o-mini", Timeout: 5 * time.Second})
	agent := NewAgent(gw)
	g := graph.New()

	delta, err := agent.Extract(context.Background(), "user text", "assistant text", g, "")
	require.NoError(t, err)
	require.Len(t, delta.NodesToUpdate, 1)
	require.Len(t, delta.EdgesToAdd, 1)
	require.Len(t, delta.NodesToDelete, 1)
	assert.Equal(t, DeletionLost, delta.NodesToDelete[0].DeletionType)
}
