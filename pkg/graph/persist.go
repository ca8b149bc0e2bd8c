package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// portableFile is the on-disk graph format: plain JSON carrying every field
// needed for a loss-free round trip (spec §6.3, §8 round-trip law). Kept
// deliberately flat (no edge indices) so it stays human-readable for
// external tooling, the same way the entities mirror in memory.go is.
type portableFile struct {
	FormatVersion int               `json:"format_version"`
	Nodes         []portableNode    `json:"nodes"`
	Edges         []portableEdge    `json:"edges"`
}

type portableNode struct {
	ID             string         `json:"id"`
	Type           EntityType     `json:"type"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Attributes     map[string]any `json:"attributes"`
	IsDeleted      bool           `json:"is_deleted"`
	DeletionReason string         `json:"deletion_reason,omitempty"`
	CreatedTime    time.Time      `json:"created_time"`
	LastModified   time.Time      `json:"last_modified"`
}

type portableEdge struct {
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	Relationship string         `json:"relationship"`
	Attributes   map[string]any `json:"attributes"`
}

// Save writes the graph to path in the portable format. The write is
// performed to a temp file and renamed into place so a crash mid-write
// never leaves a corrupt graph file behind.
func (g *KnowledgeGraph) Save(path string) error {
	g.mu.RLock()
	file := portableFile{
		FormatVersion: FormatVersion,
		Nodes:         make([]portableNode, 0, len(g.nodes)),
		Edges:         make([]portableEdge, 0, len(g.edges)),
	}
	for _, e := range g.nodes {
		file.Nodes = append(file.Nodes, portableNode{
			ID:             e.ID,
			Type:           e.Type,
			Name:           e.Name,
			Description:    e.Description,
			Attributes:     copyAttrs(e.Attributes),
			IsDeleted:      e.IsDeleted,
			DeletionReason: e.DeletionReason,
			CreatedTime:    e.CreatedTime,
			LastModified:   e.LastModified,
		})
	}
	for _, r := range g.edges {
		file.Edges = append(file.Edges, portableEdge{
			Source:       r.SourceID,
			Target:       r.TargetID,
			Relationship: r.Relationship,
			Attributes:   copyAttrs(r.Attributes),
		})
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("graph: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("graph: mkdir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("graph: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("graph: rename temp file: %w", err)
	}
	return nil
}

// Load reads a graph previously written by Save, replacing this graph's
// in-memory state.
func (g *KnowledgeGraph) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("graph: read: %w", err)
	}

	var file portableFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("graph: unmarshal: %w", err)
	}
	if file.FormatVersion > FormatVersion {
		return fmt.Errorf("graph: unsupported format version %d (max %d)", file.FormatVersion, FormatVersion)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*Entity, len(file.Nodes))
	g.edges = make(map[edgeKey]*Relation, len(file.Edges))
	g.edgesBySource = make(map[string]map[edgeKey]struct{})
	g.edgesByTarget = make(map[string]map[edgeKey]struct{})

	for _, n := range file.Nodes {
		g.nodes[n.ID] = &Entity{
			ID:             n.ID,
			Type:           n.Type,
			Name:           n.Name,
			Description:    n.Description,
			Attributes:     copyAttrs(n.Attributes),
			IsDeleted:      n.IsDeleted,
			DeletionReason: n.DeletionReason,
			CreatedTime:    n.CreatedTime,
			LastModified:   n.LastModified,
		}
	}
	for _, e := range file.Edges {
		key := edgeKey{source: e.Source, target: e.Target, relationship: e.Relationship}
		g.edges[key] = &Relation{
			SourceID:     e.Source,
			TargetID:     e.Target,
			Relationship: e.Relationship,
			Attributes:   copyAttrs(e.Attributes),
		}
		g.indexEdge(key)
	}
	return nil
}
