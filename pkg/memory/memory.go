// Package memory wraps a knowledge graph with a rolling conversation log
// and a small key-value state map, and mirrors the entity set to disk as
// JSON for external tooling (spec §4.2, §6.3).
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/taleweave/memoryd/pkg/graph"
)

// ConversationEntry is one (user, assistant) exchange in the rolling log.
type ConversationEntry struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionMemory holds a KnowledgeGraph, a conversation log, and a state
// key-value map (e.g. last character name). The conversation log and state
// map are guarded by mu; the graph guards itself.
type SessionMemory struct {
	mu           sync.RWMutex
	Graph        *graph.KnowledgeGraph
	conversation []ConversationEntry
	state        map[string]any

	maxConversation int // 0 = unbounded, per spec §4.2 default
}

// New returns an empty SessionMemory. maxConversation bounds the
// conversation log length (0 = unbounded until reset, the spec default).
func New(maxConversation int) *SessionMemory {
	return &SessionMemory{
		Graph:           graph.New(),
		conversation:    make([]ConversationEntry, 0),
		state:           make(map[string]any),
		maxConversation: maxConversation,
	}
}

// AddConversation appends a turn to the rolling log.
func (m *SessionMemory) AddConversation(user, assistant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversation = append(m.conversation, ConversationEntry{User: user, Assistant: assistant, Timestamp: time.Now()})
	if m.maxConversation > 0 && len(m.conversation) > m.maxConversation {
		m.conversation = m.conversation[len(m.conversation)-m.maxConversation:]
	}
}

// RecentConversation returns the last n conversation entries (or fewer if
// the log is shorter); n <= 0 returns the whole log.
func (m *SessionMemory) RecentConversation(n int) []ConversationEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n <= 0 || n > len(m.conversation) {
		n = len(m.conversation)
	}
	out := make([]ConversationEntry, n)
	copy(out, m.conversation[len(m.conversation)-n:])
	return out
}

// SetState / GetState expose the small key-value map (e.g. last character
// name) alongside graph and conversation state.
func (m *SessionMemory) SetState(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = value
}

func (m *SessionMemory) GetState(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.state[key]
	return v, ok
}

// RetrieveContextForPrompt returns a text block combining (a) descriptions
// and 1-hop neighborhoods of the listed entities and (b) the last
// recentTurns conversation entries (all of them when recentTurns <= 0).
// Byte-budget truncation is the caller's
// responsibility (spec §4.2).
func (m *SessionMemory) RetrieveContextForPrompt(entityIDs []string, recentTurns int) string {
	var b strings.Builder

	for _, id := range entityIDs {
		e := m.Graph.GetNode(id)
		if e == nil || e.IsDeleted {
			continue
		}
		fmt.Fprintf(&b, "%s (%s): %s\n", e.Name, e.Type, e.Description)
		for _, rel := range m.Graph.Neighbors(id) {
			other := rel.TargetID
			if other == id {
				other = rel.SourceID
			}
			fmt.Fprintf(&b, "  - %s %s\n", rel.Relationship, other)
		}
	}

	for _, entry := range m.RecentConversation(recentTurns) {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", entry.User, entry.Assistant)
	}

	return b.String()
}

// entitiesMirror is the JSON shape of the on-disk entities mirror (spec
// §6.3): consumed by external viewers, distinct from the graph's own
// portable save format because it carries only the entity-facing subset.
type entitiesMirror struct {
	Entities     []mirrorEntity `json:"entities"`
	LastModified time.Time      `json:"last_modified"`
}

type mirrorEntity struct {
	Name         string         `json:"name"`
	Type         graph.EntityType `json:"type"`
	Description  string         `json:"description"`
	CreatedTime  time.Time      `json:"created_time"`
	LastModified time.Time      `json:"last_modified"`
	Attributes   map[string]any `json:"attributes"`
}

// SyncEntitiesToDisk writes the JSON entities mirror to path.
func (m *SessionMemory) SyncEntitiesToDisk(path string) error {
	nodes := m.Graph.Nodes()
	mirror := entitiesMirror{
		Entities:     make([]mirrorEntity, 0, len(nodes)),
		LastModified: time.Now(),
	}
	for _, e := range nodes {
		mirror.Entities = append(mirror.Entities, mirrorEntity{
			Name:         e.Name,
			Type:         e.Type,
			Description:  e.Description,
			CreatedTime:  e.CreatedTime,
			LastModified: e.LastModified,
			Attributes:   e.Attributes,
		})
	}

	data, err := json.MarshalIndent(mirror, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal entities mirror: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory: write entities mirror: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReloadEntitiesFromDisk restores the graph's entity set from the mirror
// written by SyncEntitiesToDisk, overwriting in-memory state. Relations are
// not part of the mirror (spec §6.3), so edges are lost on reload — this
// mirrors external viewer expectations, not a full graph restore (use
// KnowledgeGraph.Load for that).
func (m *SessionMemory) ReloadEntitiesFromDisk(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("memory: read entities mirror: %w", err)
	}
	var mirror entitiesMirror
	if err := json.Unmarshal(data, &mirror); err != nil {
		return fmt.Errorf("memory: unmarshal entities mirror: %w", err)
	}

	m.Graph.Clear()
	for _, e := range mirror.Entities {
		id := graph.CanonicalID(e.Type, e.Name)
		m.Graph.AddOrUpdateNode(id, e.Type, e.Name, e.Description, e.Attributes)
	}
	return nil
}
