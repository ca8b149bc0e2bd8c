// Package sessionengine implements SessionEngine: the per-session facade
// composing SessionMemory, SlidingWindow, DelayedUpdateCoordinator,
// ConflictResolver, and the extraction pipeline into the operations a
// session actually exposes (spec §4.11): bootstrap from a character card,
// prompt enhancement, single-shot and windowed turn processing,
// reinitialization, and reset.
package sessionengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taleweave/memoryd/pkg/coordinator"
	"github.com/taleweave/memoryd/pkg/extraction"
	"github.com/taleweave/memoryd/pkg/graph"
	"github.com/taleweave/memoryd/pkg/memory"
	"github.com/taleweave/memoryd/pkg/window"
)

// CharacterCard is the character-card payload a bootstrap runs against
// (spec §4.4a fields).
type CharacterCard struct {
	Name            string
	Description     string
	Personality     string
	Scenario        string
	ExampleDialogue string
}

// Text composes the card into the flat prompt text LLMUpdateAgent.Bootstrap
// expects, in the order the original game_engine.py builds its analysis
// prompt from.
func (c CharacterCard) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", c.Name)
	if c.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Description)
	}
	if c.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", c.Personality)
	}
	if c.Scenario != "" {
		fmt.Fprintf(&b, "Scenario: %s\n", c.Scenario)
	}
	if c.ExampleDialogue != "" {
		fmt.Fprintf(&b, "Example dialogue: %s\n", c.ExampleDialogue)
	}
	return b.String()
}

// BootstrapStats is what InitializeFromCharacter / Reinitialize return
// (spec §4.11, §6.1 POST /initialize, POST /sessions/{id}/reinitialize).
type BootstrapStats struct {
	NodesAdded    int
	EdgesAdded    int
	Method        string // "agent" | "minimal" | "failed"
	CharacterName string
}

// EnhanceResult is what EnhancePrompt returns (spec §6.1 POST /enhance_prompt).
type EnhanceResult struct {
	EnhancedContext string
	EntitiesFound   []string
	Truncated       bool
}

// Engine is SessionEngine: the composition root for one session's state.
// Collaborators are injected at construction time; external callers never
// reach into Memory/Window/Coordinator directly (spec §9 re-architecture
// note on per-session singletons composed ad hoc).
type Engine struct {
	mu sync.Mutex

	ID                  string
	CharacterMappingKey string
	IsTest              bool
	CreatedAt           time.Time

	Memory      *memory.SessionMemory
	Window      *window.SlidingWindow
	Coordinator *coordinator.Coordinator
	Conflict    *coordinator.ConflictResolver

	agent      *extraction.Agent
	runner     *extraction.Runner
	perception *extraction.PerceptionExtractor
	useAgent   bool

	persistHook func()
}

// Config bundles what New needs beyond the bare identifiers.
type Config struct {
	ID                  string
	CharacterMappingKey string
	IsTest              bool
	HotMemorySize       int
	WindowCapacity      int
	WindowDelay         int
	Agent               *extraction.Agent // nil when no LLM configured
	UseAgent            bool
}

// New builds an Engine with fresh, empty collaborators.
func New(cfg Config) *Engine {
	mem := memory.New(cfg.HotMemorySize)
	win := window.New(cfg.WindowCapacity, cfg.WindowDelay)
	runner := extraction.NewRunner(cfg.Agent, cfg.UseAgent && cfg.Agent != nil)

	return &Engine{
		ID:                  cfg.ID,
		CharacterMappingKey: cfg.CharacterMappingKey,
		IsTest:              cfg.IsTest,
		CreatedAt:           time.Now(),
		Memory:              mem,
		Window:              win,
		Coordinator:         coordinator.New(win, mem, runner),
		Conflict:            coordinator.NewConflictResolver(win),
		agent:               cfg.Agent,
		runner:              runner,
		perception:          extraction.NewPerceptionExtractor(),
		useAgent:            cfg.UseAgent && cfg.Agent != nil,
	}
}

// SetPersistHook installs fn to be invoked after a turn-processing path
// applies deltas that actually changed the graph. Set once by
// SessionManager right after construction, before the engine is published
// (spec §4.8 step 5 "persist", §6.3 "entities mirror ... written whenever
// the graph changes through the coordinator").
func (e *Engine) SetPersistHook(fn func()) {
	e.persistHook = fn
}

// firePersistHook calls the installed persist hook, if any. Never called
// while holding e.mu — disk writes are a suspension point (spec §5) and
// must not serialize against other engine operations.
func (e *Engine) firePersistHook() {
	if e.persistHook != nil {
		e.persistHook()
	}
}

// IsEmpty reports whether the underlying graph has never been populated —
// used by the idempotent-initialize check (spec §6.1, §8 idempotence law).
func (e *Engine) IsEmpty() bool {
	return e.Memory.Graph.NodeCount() == 0
}

// InitializeFromCharacter runs the character-card bootstrap (spec
// §4.11, §4.4#1): the LLM agent when available, else a minimal
// single-entity bootstrap for the main character. It never fails outright
// — a failed agent bootstrap falls back to minimal, matching the spec's
// "the caller falls back to a minimal single-entity bootstrap that still
// succeeds" contract.
func (e *Engine) InitializeFromCharacter(ctx context.Context, card CharacterCard, worldInfo string) BootstrapStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.useAgent {
		result, err := e.agent.Bootstrap(ctx, card.Text(), worldInfo)
		if err == nil {
			return e.applyBootstrapLocked(result, card.Name)
		}
	}

	return e.minimalBootstrapLocked(card.Name)
}

func (e *Engine) applyBootstrapLocked(result *extraction.BootstrapResult, characterName string) BootstrapStats {
	for _, ent := range result.Entities {
		e.Memory.Graph.AddOrUpdateNode(ent.ID, ent.Type, ent.Name, ent.Description, ent.Attributes)
	}
	edgesAdded := 0
	for _, rel := range result.Relationships {
		if err := e.Memory.Graph.AddEdge(rel.SourceName, rel.TargetName, rel.Relationship, nil); err == nil {
			edgesAdded++
		}
	}

	name := characterName
	if name == "" {
		name = result.MainCharacterID
	}
	e.Memory.SetState("last_character_name", name)
	e.Memory.SetState("main_character_id", result.MainCharacterID)

	return BootstrapStats{
		NodesAdded:    len(result.Entities),
		EdgesAdded:    edgesAdded,
		Method:        "agent",
		CharacterName: name,
	}
}

// minimalBootstrapLocked creates a single node for the main character —
// the always-succeeding tail when no LLM is available or bootstrap failed
// (spec §4.4#1, §4.11).
func (e *Engine) minimalBootstrapLocked(characterName string) BootstrapStats {
	name := characterName
	if name == "" {
		name = "unknown"
	}
	id := graph.CanonicalID(graph.TypeCharacter, name)
	e.Memory.Graph.AddOrUpdateNode(id, graph.TypeCharacter, name, "", map[string]any{"is_main_character": true})
	e.Memory.SetState("last_character_name", name)
	e.Memory.SetState("main_character_id", id)

	return BootstrapStats{
		NodesAdded:    1,
		EdgesAdded:    0,
		Method:        "minimal",
		CharacterName: name,
	}
}

// EnhancePrompt runs PerceptionExtractor against userInput and the current
// graph, retrieves context for every detected entity plus recentTurnsHint
// conversation entries, and truncates to maxContextLength bytes with a
// tail marker (spec §4.11, §6.1 POST /enhance_prompt).
func (e *Engine) EnhancePrompt(userInput string, maxContextLength, recentTurnsHint int) EnhanceResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	detections := e.perception.Detect(userInput, e.Memory.Graph)
	entityIDs := make([]string, len(detections))
	for i, d := range detections {
		entityIDs[i] = d.EntityID
	}

	contextText := e.Memory.RetrieveContextForPrompt(entityIDs, recentTurnsHint)

	truncated := false
	if maxContextLength > 0 && len(contextText) > maxContextLength {
		const marker = "\n... [truncated]"
		cut := maxContextLength - len(marker)
		if cut < 0 {
			cut = 0
		}
		contextText = contextText[:cut] + marker
		truncated = true
	}

	return EnhanceResult{
		EnhancedContext: contextText,
		EntitiesFound:   entityIDs,
		Truncated:       truncated,
	}
}

// ExtractUpdatesFromResponse is the non-windowed, single-shot extraction
// path (spec §4.11, §6.1 POST /update_memory): it runs the same
// agent-then-fallback chain as the windowed coordinator via the shared
// Runner (spec §4.11a), validates, and applies directly — no window
// bookkeeping. When the applied delta actually changed the graph, the
// graph file and entities mirror are persisted before returning (spec §4.8
// step 5, §6.3).
func (e *Engine) ExtractUpdatesFromResponse(ctx context.Context, userInput, assistantResponse string) extraction.ApplyResult {
	e.mu.Lock()
	recent := e.Memory.RetrieveContextForPrompt(nil, 3)
	result := e.runner.Run(ctx, userInput, assistantResponse, e.Memory.Graph, recent)
	applyResult := extraction.Apply(e.Memory.Graph, result.Delta)
	e.mu.Unlock()

	if applyResult.Changed() {
		e.firePersistHook()
	}
	return applyResult
}

// ProcessConversation is the windowed path (spec §4.8, §6.1 POST
// /process_conversation): appends the turn to the conversation log so
// RetrieveContextForPrompt sees it too, then delegates to the Coordinator.
// When the window's target turn became ready and its extracted delta
// actually changed the graph, the graph file and entities mirror are
// persisted before returning (spec §4.8 step 5, §6.3).
func (e *Engine) ProcessConversation(ctx context.Context, userInput, assistantResponse string) (coordinator.ProcessResult, error) {
	e.mu.Lock()
	e.Memory.AddConversation(userInput, assistantResponse)
	e.mu.Unlock()

	result, err := e.Coordinator.ProcessNewConversation(ctx, userInput, assistantResponse)
	if err == nil && result.TargetProcessed && result.GragUpdates.Changed() {
		e.firePersistHook()
	}
	return result, err
}

// Reinitialize clears the graph and re-runs the bootstrap (spec §4.11,
// §6.1 POST /sessions/{id}/reinitialize).
func (e *Engine) Reinitialize(ctx context.Context, card CharacterCard, worldInfo string) BootstrapStats {
	e.mu.Lock()
	e.Memory.Graph.Clear()
	e.mu.Unlock()
	return e.InitializeFromCharacter(ctx, card, worldInfo)
}

// ReinitializeMinimal re-runs only the minimal bootstrap, from the
// character name recorded in session state — used by the plain
// POST /sessions/{id}/reinitialize endpoint when no fresh card is supplied
// (spec §6.1: "Minimal, from stored character name").
func (e *Engine) ReinitializeMinimal() BootstrapStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	name, _ := e.Memory.GetState("last_character_name")
	nameStr, _ := name.(string)
	e.Memory.Graph.Clear()
	return e.minimalBootstrapLocked(nameStr)
}

// Clear empties the graph, leaving the conversation log and window intact.
func (e *Engine) Clear() {
	e.Memory.Graph.Clear()
}

// Reset either fully resets the session (cleared graph, fresh window) or
// partially resets it, keeping the graph and replacing only the window
// (spec §3 Session lifecycle, §6.1 POST /sessions/{id}/reset
// "keep_character_data"). In both cases the conversation log held in
// Memory is left as it is.
func (e *Engine) Reset(keepGraph bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !keepGraph {
		e.Memory.Graph.Clear()
	}
	e.Window = window.New(e.Window.Capacity(), e.Window.Delay())
	e.Coordinator = coordinator.New(e.Window, e.Memory, e.runner)
	e.Conflict = coordinator.NewConflictResolver(e.Window)
}

// GraphStats summarizes the graph for stats/health endpoints.
type GraphStats struct {
	Nodes int
	Edges int
}

// Stats returns the current graph node/edge counts.
func (e *Engine) Stats() GraphStats {
	return GraphStats{Nodes: e.Memory.Graph.NodeCount(), Edges: e.Memory.Graph.EdgeCount()}
}

// LastCharacterName returns the character name recorded at bootstrap time.
func (e *Engine) LastCharacterName() string {
	v, _ := e.Memory.GetState("last_character_name")
	s, _ := v.(string)
	return s
}

// Persist writes the graph and entities mirror to the given paths (spec
// §4.8 step 5, §6.3).
func (e *Engine) Persist(graphPath, entitiesMirrorPath string) error {
	if err := e.Memory.Graph.Save(graphPath); err != nil {
		return err
	}
	return e.Memory.SyncEntitiesToDisk(entitiesMirrorPath)
}

// Load restores the graph from graphPath, if present.
func (e *Engine) Load(graphPath string) error {
	return e.Memory.Graph.Load(graphPath)
}
