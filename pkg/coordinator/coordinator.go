// Package coordinator implements DelayedUpdateCoordinator and
// ConflictResolver: the windowed turn-processing pipeline that decides when
// a turn becomes the extraction target, drives the extraction fallback
// chain, applies validated deltas, and reconciles the local window against
// an externally supplied authoritative chat history.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/taleweave/memoryd/pkg/extraction"
	"github.com/taleweave/memoryd/pkg/memory"
	"github.com/taleweave/memoryd/pkg/window"
)

// WindowInfo is echoed back in ProcessResult (spec §4.8 step 6).
type WindowInfo struct {
	Size     int
	Capacity int
}

// ProcessResult is what process_new_conversation returns.
type ProcessResult struct {
	NewSequence     int64
	TargetProcessed bool
	Window          WindowInfo
	GragUpdates     extraction.ApplyResult
}

// Coordinator is DelayedUpdateCoordinator: it owns a session's window and
// drives extraction for the turn that becomes ready, serializing extraction
// so at most one is ever in flight for a given session (spec §3 Window
// invariant, §8 testable property 4).
type Coordinator struct {
	mu         sync.Mutex
	win        *window.SlidingWindow
	mem        *memory.SessionMemory
	runner     *extraction.Runner
	inFlight   bool
	extracting chan struct{} // non-nil only while a probe is attached, for tests
}

// New builds a Coordinator around an existing window and session memory,
// using runner for extraction (agent-then-fallback, spec §4.11a).
func New(win *window.SlidingWindow, mem *memory.SessionMemory, runner *extraction.Runner) *Coordinator {
	return &Coordinator{win: win, mem: mem, runner: runner}
}

// AttachExtractionProbe installs a channel that receives a signal the
// instant an extraction begins; the extraction does not proceed until that
// send succeeds, so an unbuffered or full channel holds it until the test
// reads. Used by tests of the in-flight bookkeeping; production callers
// never use this.
func (c *Coordinator) AttachExtractionProbe(ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extracting = ch
}

// ProcessNewConversation is process_new_conversation (spec §4.8): pushes the
// turn, and if a target became ready and no extraction is already in
// flight, runs the fallback-chain extraction, validates, applies, and marks
// the target processed. It does not persist; SessionEngine does that after
// it returns.
func (c *Coordinator) ProcessNewConversation(ctx context.Context, userText, assistantText string) (ProcessResult, error) {
	c.mu.Lock()
	seq, target := c.win.Push(userText, assistantText)
	result := ProcessResult{
		NewSequence: seq,
		Window:      WindowInfo{Size: c.win.Len(), Capacity: c.win.Capacity()},
	}

	if target == nil || c.inFlight {
		c.mu.Unlock()
		return result, nil
	}
	c.inFlight = true
	probe := c.extracting
	c.mu.Unlock()

	if probe != nil {
		probe <- struct{}{}
	}

	applyResult, err := c.runExtraction(ctx, target)

	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()

	if err != nil {
		return result, err
	}

	result.TargetProcessed = true
	result.GragUpdates = applyResult
	return result, nil
}

// runExtraction drives the shared extraction fallback chain against the
// target turn, using the last ≤3 completed turns as context (spec §4.8
// step 3).
func (c *Coordinator) runExtraction(ctx context.Context, target *window.Turn) (extraction.ApplyResult, error) {
	contextText := c.recentCompletedTurnsText(3)

	r := c.runner.Run(ctx, target.UserText, target.AssistantText, c.mem.Graph, contextText)
	applyResult := extraction.Apply(c.mem.Graph, r.Delta)
	c.win.MarkProcessed(target.Sequence)
	return applyResult, nil
}

// recentCompletedTurnsText builds the context snippet fed to extraction:
// the last n processed turns in the window, oldest first.
func (c *Coordinator) recentCompletedTurnsText(n int) string {
	turns := c.win.Turns()
	var completed []*window.Turn
	for _, t := range turns {
		if t.Processed {
			completed = append(completed, t)
		}
	}
	if len(completed) > n {
		completed = completed[len(completed)-n:]
	}

	var b strings.Builder
	for _, t := range completed {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.UserText, t.AssistantText)
	}
	return b.String()
}
