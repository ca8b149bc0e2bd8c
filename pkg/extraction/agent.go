package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taleweave/memoryd/pkg/graph"
	"github.com/taleweave/memoryd/pkg/llm"
)

// BootstrapEntity is one entity proposed by the character-card bootstrap
// (spec §4.4a), keyed by name rather than canonical id — the agent resolves
// names to ids once the full entity set is known.
type BootstrapEntity struct {
	Name        string
	Type        graph.EntityType
	Description string
	Attributes  map[string]any
}

// BootstrapRelationship is a relation proposed by the bootstrap, referring
// to entities by the Name they were given in the same payload.
type BootstrapRelationship struct {
	SourceName   string
	TargetName   string
	Relationship string
}

// BootstrapResult is the resolved output of the character-card bootstrap:
// entities and relationships have been converted from name references to
// canonical ids, and MainCharacterID names the distinguished main character
// entity (spec §8 "Main-character flagging").
type BootstrapResult struct {
	MainCharacterID string
	Entities        []*graph.Entity
	Relationships   []BootstrapRelationship // SourceName/TargetName hold resolved ids here
}

// Agent is LLMUpdateAgent: character-card bootstrap plus per-turn delta
// extraction, both backed by a single llm.Gateway call in JSON mode.
type Agent struct {
	gateway *llm.Gateway
}

// NewAgent builds an Agent around gateway.
func NewAgent(gateway *llm.Gateway) *Agent {
	return &Agent{gateway: gateway}
}

// rawBootstrapResponse mirrors the JSON the LLM is asked to produce (spec
// §4.4a, grounded on game_engine.py's _build_character_analysis_prompt: a
// flat entities[] list and a flat relationships[] list keyed by name).
type rawBootstrapResponse struct {
	MainCharacter struct {
		Name        string         `json:"name"`
		Type        string         `json:"type"`
		Description string         `json:"description"`
		Attributes  map[string]any `json:"attributes"`
	} `json:"main_character"`
	Entities []struct {
		Name        string         `json:"name"`
		Type        string         `json:"type"`
		Description string         `json:"description"`
		Attributes  map[string]any `json:"attributes"`
	} `json:"entities"`
	Relationships []struct {
		Source       string `json:"source"`
		Target       string `json:"target"`
		Relationship string `json:"relationship"`
	} `json:"relationships"`
}

// Bootstrap runs the character-card bootstrap. On invalid JSON from the
// model it returns a *llm.Error with Kind=LLMFormat; the caller
// (SessionEngine.initialize_from_character) falls back to a minimal
// single-entity bootstrap that still succeeds (spec §4.4#1).
func (a *Agent) Bootstrap(ctx context.Context, characterCard, worldInfo string) (*BootstrapResult, error) {
	prompt := buildBootstrapPrompt(characterCard, worldInfo)

	text, err := a.gateway.Generate(ctx, prompt, llm.GenerateOptions{
		SystemMessage: "You extract structured character and world data as JSON.",
		MaxTokens:     2048,
		Temperature:   0.3,
		JSONMode:      true,
	})
	if err != nil {
		return nil, err
	}

	var raw rawBootstrapResponse
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &llm.Error{Kind: llm.KindFormat, Err: fmt.Errorf("bootstrap response: %w", err)}
	}

	return resolveBootstrap(raw), nil
}

// resolveBootstrap converts name-keyed bootstrap output into canonical-id
// entities and relationships. A relationship whose source or target name
// doesn't resolve is silently dropped — the original logs and continues
// rather than failing the whole bootstrap (spec §4.4a).
func resolveBootstrap(raw rawBootstrapResponse) *BootstrapResult {
	nameToID := make(map[string]string)
	result := &BootstrapResult{}

	mainType := graph.EntityType(raw.MainCharacter.Type)
	if mainType == "" {
		mainType = graph.TypeCharacter
	}
	if raw.MainCharacter.Name != "" {
		id := graph.CanonicalID(mainType, raw.MainCharacter.Name)
		attrs := raw.MainCharacter.Attributes
		if attrs == nil {
			attrs = make(map[string]any)
		}
		attrs["is_main_character"] = true
		result.Entities = append(result.Entities, &graph.Entity{
			ID:          id,
			Type:        mainType,
			Name:        raw.MainCharacter.Name,
			Description: raw.MainCharacter.Description,
			Attributes:  attrs,
		})
		nameToID[raw.MainCharacter.Name] = id
		result.MainCharacterID = id
	}

	for _, e := range raw.Entities {
		if e.Name == "" {
			continue
		}
		entityType := graph.EntityType(e.Type)
		if entityType == "" {
			entityType = graph.TypeUnknown
		}
		id := graph.CanonicalID(entityType, e.Name)
		result.Entities = append(result.Entities, &graph.Entity{
			ID:          id,
			Type:        entityType,
			Name:        e.Name,
			Description: e.Description,
			Attributes:  e.Attributes,
		})
		nameToID[e.Name] = id
	}

	for _, r := range raw.Relationships {
		sourceID, sourceOK := nameToID[r.Source]
		targetID, targetOK := nameToID[r.Target]
		if !sourceOK || !targetOK {
			continue // silently dropped, per §4.4a
		}
		result.Relationships = append(result.Relationships, BootstrapRelationship{
			SourceName:   sourceID,
			TargetName:   targetID,
			Relationship: r.Relationship,
		})
	}

	return result
}

func buildBootstrapPrompt(characterCard, worldInfo string) string {
	return fmt.Sprintf(`Given the character card and world info below, produce JSON with this exact shape:
{
  "main_character": {"name": "...", "type": "character", "description": "...", "attributes": {}},
  "entities": [{"name": "...", "type": "character|location|item|event|concept|organization|skill", "description": "...", "attributes": {}}],
  "relationships": [{"source": "<entity name>", "target": "<entity name>", "relationship": "..."}]
}
Relationship source/target must be names that appear in main_character.name or entities[].name.

Character card:
%s

World info:
%s`, characterCard, worldInfo)
}

// rawDelta mirrors the JSON shape the model is asked to produce for
// per-turn delta extraction (spec §4.4#2).
type rawDelta struct {
	NodesToUpdate []struct {
		NodeID     string         `json:"node_id"`
		Type       string         `json:"type"`
		Attributes map[string]any `json:"attributes"`
	} `json:"nodes_to_update"`
	EdgesToAdd []struct {
		Source       string `json:"source"`
		Target       string `json:"target"`
		Relationship string `json:"relationship"`
	} `json:"edges_to_add"`
	NodesToDelete []struct {
		NodeID       string `json:"node_id"`
		DeletionType string `json:"deletion_type"`
		Reason       string `json:"reason"`
	} `json:"nodes_to_delete"`
	EdgesToDelete []struct {
		Source       string `json:"source"`
		Target       string `json:"target"`
		Relationship string `json:"relationship"`
		Reason       string `json:"reason"`
	} `json:"edges_to_delete"`
}

// Extract runs per-turn delta extraction: inputs are the (user, assistant)
// turn text, a snapshot of the current graph, and recent context text (spec
// §4.4#2). On any failure it returns an *llm.Error; the caller's fallback
// chain (runExtraction) invokes LocalRuleExtractor next.
func (a *Agent) Extract(ctx context.Context, userText, assistantText string, graphSnapshot *graph.KnowledgeGraph, recentContextText string) (Delta, error) {
	prompt := buildDeltaPrompt(userText, assistantText, graphSnapshot, recentContextText)

	text, err := a.gateway.Generate(ctx, prompt, llm.GenerateOptions{
		SystemMessage: "You extract graph deltas from a conversation turn as JSON.",
		MaxTokens:     1024,
		Temperature:   0.2,
		JSONMode:      true,
	})
	if err != nil {
		return Delta{}, err
	}

	var raw rawDelta
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Delta{}, &llm.Error{Kind: llm.KindFormat, Err: fmt.Errorf("delta response: %w", err)}
	}

	return convertRawDelta(raw), nil
}

func convertRawDelta(raw rawDelta) Delta {
	var d Delta
	for _, nu := range raw.NodesToUpdate {
		d.NodesToUpdate = append(d.NodesToUpdate, NodeUpdate{
			NodeID:     nu.NodeID,
			Type:       graph.EntityType(nu.Type),
			Attributes: nu.Attributes,
		})
	}
	for _, ea := range raw.EdgesToAdd {
		d.EdgesToAdd = append(d.EdgesToAdd, EdgeAdd{Source: ea.Source, Target: ea.Target, Relationship: ea.Relationship})
	}
	for _, nd := range raw.NodesToDelete {
		dt := DeletionType(nd.DeletionType)
		if dt == "" {
			dt = DeletionDefault
		}
		d.NodesToDelete = append(d.NodesToDelete, NodeDeletion{NodeID: nd.NodeID, DeletionType: dt, Reason: nd.Reason})
	}
	for _, ed := range raw.EdgesToDelete {
		d.EdgesToDelete = append(d.EdgesToDelete, EdgeDeletion{Source: ed.Source, Target: ed.Target, Relationship: ed.Relationship, Reason: ed.Reason})
	}
	return d
}

func buildDeltaPrompt(userText, assistantText string, graphSnapshot *graph.KnowledgeGraph, recentContextText string) string {
	return fmt.Sprintf(`Given the turn below and the current graph (%d nodes, %d edges), produce JSON with this exact shape:
{
  "nodes_to_update": [{"node_id": "...", "type": "...", "attributes": {}}],
  "edges_to_add": [{"source": "...", "target": "...", "relationship": "..."}],
  "nodes_to_delete": [{"node_id": "...", "deletion_type": "death|lost|default", "reason": "..."}],
  "edges_to_delete": [{"source": "...", "target": "...", "relationship": "...", "reason": "..."}]
}
Any field may be an empty list if there is no change of that kind. "*" is allowed for source/target/relationship in edges_to_delete as a wildcard.

Recent context:
%s

User: %s
Assistant: %s`, graphSnapshot.NodeCount(), graphSnapshot.EdgeCount(), recentContextText, userText, assistantText)
}
