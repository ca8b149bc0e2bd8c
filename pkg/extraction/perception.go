package extraction

import (
	"strings"

	"github.com/taleweave/memoryd/pkg/graph"
)

// PerceptionExtractor is the fallback-path entity/intent detector used by
// SessionEngine.enhance_prompt (spec §2, §4.11): given free text and the
// current graph, it decides which already-known entities the text is
// talking about, so their descriptions and neighborhoods can be folded
// into the enhanced context. It never proposes graph mutations — that is
// LocalRuleExtractor's job — this component only reads.
type PerceptionExtractor struct{}

// NewPerceptionExtractor returns a PerceptionExtractor. It holds no state.
func NewPerceptionExtractor() *PerceptionExtractor {
	return &PerceptionExtractor{}
}

// Detection is one entity PerceptionExtractor believes the input text
// refers to, plus a confidence signal for ranking when the caller must
// truncate to a context budget.
type Detection struct {
	EntityID string
	Name     string
	Score    int // number of distinct mention signals found
}

// Detect scans text against every known (non-deleted) entity name in g and
// returns the ones mentioned, ranked by Score descending. A name mention is
// a case-insensitive substring match of the entity's Name or of the name
// fragment encoded in its canonical id; each that matches adds to Score.
func (p *PerceptionExtractor) Detect(text string, g *graph.KnowledgeGraph) []Detection {
	lower := strings.ToLower(text)
	var out []Detection

	for _, e := range g.Nodes() {
		if e.IsDeleted {
			continue
		}
		score := mentionScore(lower, e)
		if score > 0 {
			out = append(out, Detection{EntityID: e.ID, Name: e.Name, Score: score})
		}
	}

	sortDetectionsByScoreDesc(out)
	return out
}

// mentionScore counts how many of an entity's surface forms (display name,
// id-encoded name fragment) appear in the lowercased text.
func mentionScore(lowerText string, e *graph.Entity) int {
	score := 0
	if name := strings.ToLower(strings.TrimSpace(e.Name)); name != "" && strings.Contains(lowerText, name) {
		score++
	}
	if frag := idNameFragment(e.ID); frag != "" && strings.Contains(lowerText, strings.ReplaceAll(frag, "_", " ")) {
		score++
	}
	return score
}

// idNameFragment strips the "<type>_" prefix from a canonical id, returning
// the normalized name portion (still underscore-separated).
func idNameFragment(id string) string {
	idx := strings.Index(id, "_")
	if idx < 0 || idx == len(id)-1 {
		return ""
	}
	return id[idx+1:]
}

// sortDetectionsByScoreDesc insertion-sorts detections by Score descending.
func sortDetectionsByScoreDesc(d []Detection) {
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && d[j].Score > d[j-1].Score; j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}
