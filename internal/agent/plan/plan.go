// Package plan defines the execution plan arena: steps addressed by
// integer id with explicit dependency edges, plus the validator that
// gates every plan before the orchestrator runs it.
package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StepType classifies a planned step.
type StepType string

const (
	StepMCPCall        StepType = "mcp_call"
	StepLimitPortfolio StepType = "limit_portfolio"
	StepRAGSearch      StepType = "rag_search"
	StepExplanation    StepType = "explanation"
)

// Step is one node of the plan arena. Args hold literal argument values;
// ArgRefs map an argument name to a dotted path into an earlier step's
// data ("steps.<id>.<path>") resolved at execution time.
type Step struct {
	ID        int               `json:"step_id"`
	Type      StepType          `json:"type"`
	Tool      string            `json:"tool,omitempty"`
	Args      map[string]any    `json:"args,omitempty"`
	ArgRefs   map[string]string `json:"arg_refs,omitempty"`
	DependsOn []int             `json:"depends_on,omitempty"`
	Fatal     bool              `json:"fatal,omitempty"`
	Tickers   []string          `json:"tickers,omitempty"`
}

// Plan is an immutable arena of steps in execution order. Re-plans build
// a fresh arena instead of mutating this one.
type Plan struct {
	ScenarioType string `json:"scenario_type"`
	Steps        []Step `json:"steps"`
	CostRank     int    `json:"cost_rank"`

	// Execution hints set by re-planning. Parallelism overrides the
	// orchestrator's default worker count; BackoffMS inserts a pause
	// before each step. Zero means no override.
	Parallelism int   `json:"parallelism,omitempty"`
	BackoffMS   int64 `json:"backoff_ms,omitempty"`
}

// Signature is a stable fingerprint of the plan used to reject duplicate
// re-plans: two plans with the same step tuple have the same signature.
func (p *Plan) Signature() string {
	parts := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		args, _ := json.Marshal(canonicalArgs(step.Args))
		parts = append(parts, fmt.Sprintf("%s:%s:%s", step.Type, step.Tool, args))
	}
	parts = append(parts, fmt.Sprintf("hints:%d:%d", p.Parallelism, p.BackoffMS))
	return strings.Join(parts, ";")
}

// DistinctTickers returns the unique tickers referenced across all steps.
func (p *Plan) DistinctTickers() []string {
	seen := make(map[string]bool)
	for _, step := range p.Steps {
		for _, t := range step.Tickers {
			seen[t] = true
		}
	}
	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// canonicalArgs sorts map keys so the signature is order-independent.
func canonicalArgs(args map[string]any) []any {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, args[k])
	}
	return out
}
