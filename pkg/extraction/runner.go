package extraction

import (
	"context"

	"github.com/taleweave/memoryd/pkg/graph"
)

// Runner is the shared fallback chain (runExtraction, spec §4.11a) used by
// both the windowed coordinator and SessionEngine.extract_updates_from_response:
// try the LLM agent first, and only on failure fall back to the
// deterministic local extractor. It never itself fails —
// LocalRuleExtractor.Extract never returns an error.
type Runner struct {
	agent     *Agent
	local     *LocalRuleExtractor
	useAgent  bool
	validator *Validator
}

// NewRunner builds a Runner. useAgent mirrors config's enable_enhanced_agent
// switch (spec §6.4 sliding_window.enable_enhanced_agent): when false the
// agent is skipped entirely and only the local extractor runs.
func NewRunner(agent *Agent, useAgent bool) *Runner {
	return &Runner{
		agent:     agent,
		local:     NewLocalRuleExtractor(),
		useAgent:  useAgent,
		validator: NewValidator(),
	}
}

// Result is what runExtraction produces: the validated delta plus which
// extractor ultimately supplied it and the validation counters, for
// observability in API responses (spec §4.8 step 6 / §6.1 endpoints).
type Result struct {
	Delta        Delta
	UsedFallback bool
	Counters     ValidationCounters
}

// Run is runExtraction (spec §4.11a): it tries the LLM agent (when enabled)
// against the given graph snapshot and context text, falls back to the
// local rule extractor on any agent error, then always validates the
// winning delta against g before returning it.
func (r *Runner) Run(ctx context.Context, userText, assistantText string, g *graph.KnowledgeGraph, recentContextText string) Result {
	var delta Delta
	usedFallback := true

	if r.useAgent {
		d, err := r.agent.Extract(ctx, userText, assistantText, g, recentContextText)
		if err == nil {
			delta = d
			usedFallback = false
		}
	}

	if usedFallback {
		// LocalRuleExtractor never errors; ignore the error return.
		delta, _ = r.local.Extract(ctx, userText, assistantText)
	}

	cleaned, counters := r.validator.Validate(g, delta)
	return Result{Delta: cleaned, UsedFallback: usedFallback, Counters: counters}
}
