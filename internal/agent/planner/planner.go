// Package planner turns a user request into an execution plan and
// rewrites failed plans. Three strategies share one contract: Basic is
// purely heuristic, Advanced asks an LLM and falls back to Basic,
// External delegates to a remote planner and also falls back to Basic.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosfin/analyst/internal/agent/llm"
	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/agent/scenario"
)

// Strategy builds and rewrites plans.
type Strategy interface {
	Name() string
	MaxReplans() int
	BuildPlan(ctx context.Context, req scenario.Request) (*plan.Plan, error)
	Replan(ctx context.Context, req scenario.Request, prev *plan.Plan, result *plan.ExecutionResult) (*plan.Plan, error)
}

// Config holds the planner limits shared by all strategies.
type Config struct {
	Mode               string // basic | advanced | external_agent
	MaxTickers         int
	MaxSteps           int
	MaxLookbackDays    int
	DefaultIndexTicker string
	DefaultLookback    time.Duration
	ExternalURL        string
	ExternalTimeout    time.Duration
}

// New selects the strategy by cfg.Mode. The validator gates every plan a
// strategy emits, including LLM- and remote-produced ones.
func New(cfg Config, llmClient *llm.Client, validator *plan.Validator, log zerolog.Logger) (Strategy, error) {
	basic := NewBasic(cfg, validator, log)
	switch cfg.Mode {
	case "", "basic":
		return basic, nil
	case "advanced":
		if llmClient == nil {
			return nil, fmt.Errorf("advanced planner requires an LLM client")
		}
		return NewAdvanced(basic, llmClient, validator, log), nil
	case "external_agent":
		if cfg.ExternalURL == "" {
			return nil, fmt.Errorf("external planner requires an endpoint URL")
		}
		return NewExternal(basic, cfg, validator, log), nil
	default:
		return nil, fmt.Errorf("unknown planner mode %q", cfg.Mode)
	}
}
