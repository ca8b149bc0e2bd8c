// Package window implements SlidingWindow: a fixed-capacity FIFO of
// conversation turns with a delay-based "ready to process" predicate
// (spec §3 Window, §4.7).
package window

import (
	"sync"
	"time"
)

// Turn is one (user, assistant) exchange with a monotonic sequence number.
type Turn struct {
	Sequence          int64
	UserText          string
	AssistantText     string
	Timestamp         time.Time
	ExternalMessageID string
	Processed         bool
}

// SlidingWindow is a bounded FIFO of the most recent turns, newest at tail.
// Overflow drops from the head. Guarded by its own mutex; callers never
// reach into the internal slice (spec §9 re-architecture note).
type SlidingWindow struct {
	mu       sync.Mutex
	capacity int
	delay    int
	turns    []*Turn
	nextSeq  int64
}

// New builds a SlidingWindow with the given capacity and processing delay.
func New(capacity, delay int) *SlidingWindow {
	return &SlidingWindow{
		capacity: capacity,
		delay:    delay,
		turns:    make([]*Turn, 0, capacity),
		nextSeq:  1,
	}
}

// Push assigns the next sequence number to turn, appends it (dropping the
// head on overflow), and returns the new sequence plus the now-ready target
// turn, if any.
func (w *SlidingWindow) Push(userText, assistantText string) (int64, *Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	t := &Turn{
		Sequence:      w.nextSeq,
		UserText:      userText,
		AssistantText: assistantText,
		Timestamp:     time.Now(),
	}
	w.nextSeq++
	w.turns = append(w.turns, t)
	if len(w.turns) > w.capacity {
		w.turns = w.turns[len(w.turns)-w.capacity:]
	}

	return t.Sequence, w.targetLocked()
}

// Target returns the turn currently ready for extraction (spec §3 readiness
// rule), or nil. The target is the turn at position len(window)-1-delay;
// it becomes extractable the moment the window length first reaches
// delay+1.
func (w *SlidingWindow) Target() *Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.targetLocked()
}

func (w *SlidingWindow) targetLocked() *Turn {
	if len(w.turns) < w.delay+1 {
		return nil
	}
	return w.turns[len(w.turns)-1-w.delay]
}

// MarkProcessed flips the Processed flag for the turn with the given
// sequence, if still present in the window.
func (w *SlidingWindow) MarkProcessed(sequence int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.turns {
		if t.Sequence == sequence {
			t.Processed = true
			return
		}
	}
}

// Len returns the current window length.
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}

// Turns returns a snapshot copy of the window contents, oldest first.
func (w *SlidingWindow) Turns() []*Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Turn, len(w.turns))
	for i, t := range w.turns {
		cp := *t
		out[i] = &cp
	}
	return out
}

// Get returns the turn with the given sequence, or nil if it has scrolled
// out of the window.
func (w *SlidingWindow) Get(sequence int64) *Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.turns {
		if t.Sequence == sequence {
			cp := *t
			return &cp
		}
	}
	return nil
}

// Replace swaps the turn at sequence for newUserText/newAssistantText,
// preserving its sequence number and Processed flag. Used by
// ConflictResolver to apply authoritative-wins text replacement. Returns
// whether a turn with that sequence was found.
func (w *SlidingWindow) Replace(sequence int64, newUserText, newAssistantText string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.turns {
		if t.Sequence == sequence {
			t.UserText = newUserText
			t.AssistantText = newAssistantText
			return true
		}
	}
	return false
}

// Remove drops the turn with the given sequence from the window entirely.
// Returns whether it was present. ConflictResolver does not call it: a
// locally held turn that the authoritative history omits stays in place.
func (w *SlidingWindow) Remove(sequence int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, t := range w.turns {
		if t.Sequence == sequence {
			w.turns = append(w.turns[:i], w.turns[i+1:]...)
			return true
		}
	}
	return false
}

// InsertBefore inserts a new turn immediately before the turn at sequence,
// assigning it a sequence one less than that turn's. Capacity overflow
// still drops from the head. ConflictResolver does not call it: turns the
// authoritative history has and the local window lacks are only counted.
func (w *SlidingWindow) InsertBefore(sequence int64, userText, assistantText string, externalMessageID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := -1
	for i, t := range w.turns {
		if t.Sequence == sequence {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	newTurn := &Turn{
		Sequence:          w.turns[idx].Sequence - 1,
		UserText:          userText,
		AssistantText:     assistantText,
		Timestamp:         time.Now(),
		ExternalMessageID: externalMessageID,
	}
	w.turns = append(w.turns[:idx], append([]*Turn{newTurn}, w.turns[idx:]...)...)
	if len(w.turns) > w.capacity {
		w.turns = w.turns[len(w.turns)-w.capacity:]
	}
	return true
}

// Capacity and Delay expose the window's configuration for stats reporting.
func (w *SlidingWindow) Capacity() int { return w.capacity }
func (w *SlidingWindow) Delay() int    { return w.delay }
