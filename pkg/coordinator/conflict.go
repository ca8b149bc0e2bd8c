package coordinator

import (
	"github.com/sahilm/fuzzy"

	"github.com/taleweave/memoryd/pkg/window"
)

// AuthoritativeTurn is one entry of the externally supplied chat history fed
// to ConflictResolver.Sync (spec §4.9, HTTP `/sync_conversation`).
type AuthoritativeTurn struct {
	Sequence          int64
	UserText          string
	AssistantText     string
	ExternalMessageID string
}

// SyncResult is the counters ConflictResolver.Sync returns (spec §4.9).
type SyncResult struct {
	SyncedTurns       int
	ConflictsDetected int
	ConflictsResolved int
	OutOfWindow       int
	NewTurns          int
	UpdatedTurns      int
	DeletedTurns      int
	WindowSynced      bool
}

// ConflictResolver reconciles a session's local window against an
// authoritative external chat history. Resolution is always
// authoritative-wins: on a text mismatch the local turn's text is replaced,
// and deltas already applied from the stale text are not retroactively
// reverted — a documented limitation the source itself has (spec §4.9,
// §9 open question, §8 scenario S4).
type ConflictResolver struct {
	win *window.SlidingWindow
}

// NewConflictResolver builds a ConflictResolver bound to win.
func NewConflictResolver(win *window.SlidingWindow) *ConflictResolver {
	return &ConflictResolver{win: win}
}

// turnCorpus adapts window turn texts to fuzzy.Source so FindFrom can score
// an authoritative turn's text against every local turn lacking a sequence
// match, standing in for the "(sequence, fuzzy text hash)" match rule (spec
// §4.9) when no external_message_id is present on either side.
type turnCorpus []*window.Turn

func (c turnCorpus) String(i int) string { return c[i].UserText + "\x00" + c[i].AssistantText }
func (c turnCorpus) Len() int            { return len(c) }

// fuzzyMatchThreshold is the minimum fuzzy.Match score (sahilm/fuzzy scores
// are unbounded but typically single/low-double digits for near-identical
// strings) above which two turns are considered the same turn rather than
// unrelated ones when sequence numbers don't line up.
const fuzzyMatchThreshold = 1

// Sync reconciles win against authoritative, applying authoritative-wins
// resolution to every turn it can match (spec §4.9).
func (r *ConflictResolver) Sync(authoritative []AuthoritativeTurn) SyncResult {
	var result SyncResult
	local := r.win.Turns()

	minSeq := int64(0)
	if len(local) > 0 {
		minSeq = local[0].Sequence
	}

	matchedLocal := make(map[int64]struct{})

	for _, auth := range authoritative {
		local := r.win.Turns() // re-fetch: prior iterations may have mutated the window
		match, ok := r.findMatch(auth, local, matchedLocal)
		if !ok {
			if auth.Sequence < minSeq {
				result.OutOfWindow++
				continue
			}
			result.NewTurns++
			continue
		}
		matchedLocal[match.Sequence] = struct{}{}
		result.SyncedTurns++

		if match.UserText == auth.UserText && match.AssistantText == auth.AssistantText {
			continue
		}

		result.ConflictsDetected++
		if r.win.Replace(match.Sequence, auth.UserText, auth.AssistantText) {
			result.ConflictsResolved++
			result.UpdatedTurns++
		}
	}

	result.WindowSynced = true
	return result
}

// findMatch locates the local turn corresponding to auth: first by
// ExternalMessageID, then by sequence, then by fuzzy text similarity
// against any not-yet-matched local turn.
func (r *ConflictResolver) findMatch(auth AuthoritativeTurn, local []*window.Turn, matched map[int64]struct{}) (*window.Turn, bool) {
	if auth.ExternalMessageID != "" {
		for _, t := range local {
			if t.ExternalMessageID == auth.ExternalMessageID {
				return t, true
			}
		}
	}

	for _, t := range local {
		if t.Sequence == auth.Sequence {
			return t, true
		}
	}

	var candidates turnCorpus
	var candidateTurns []*window.Turn
	for _, t := range local {
		if _, used := matched[t.Sequence]; used {
			continue
		}
		candidates = append(candidates, t)
		candidateTurns = append(candidateTurns, t)
	}
	if len(candidates) == 0 {
		return nil, false
	}

	matches := fuzzy.FindFrom(auth.UserText+"\x00"+auth.AssistantText, candidates)
	if len(matches) == 0 || matches[0].Score < fuzzyMatchThreshold {
		return nil, false
	}
	return candidateTurns[matches[0].Index], true
}
