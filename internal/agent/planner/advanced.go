package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mosfin/analyst/internal/agent/llm"
	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/agent/scenario"
)

const maxReplansAdvanced = 2

// Advanced delegates ambiguous classification and re-planning to an LLM.
// Every LLM output passes the plan validator; any LLM failure or invalid
// plan falls back to the Basic strategy.
type Advanced struct {
	basic     *Basic
	llm       *llm.Client
	validator *plan.Validator
	log       zerolog.Logger
}

// NewAdvanced builds the LLM-assisted strategy.
func NewAdvanced(basic *Basic, llmClient *llm.Client, validator *plan.Validator, log zerolog.Logger) *Advanced {
	return &Advanced{
		basic:     basic,
		llm:       llmClient,
		validator: validator,
		log:       log.With().Str("component", "planner-advanced").Logger(),
	}
}

func (a *Advanced) Name() string    { return "advanced" }
func (a *Advanced) MaxReplans() int { return maxReplansAdvanced }

const classifySystemPrompt = `You classify financial analysis requests for the Moscow Exchange.
Respond with a single JSON object: {"scenario_type": "<type>"} where <type> is one of:
single_security_overview, compare_securities, index_risk_scan, portfolio_risk,
portfolio_risk_drill_down, cfo_liquidity_report, issuer_peers_compare.
No prose, JSON only.`

// BuildPlan uses the deterministic rules first and only asks the LLM when
// they are ambiguous (no portfolio, no recognised entities).
func (a *Advanced) BuildPlan(ctx context.Context, req scenario.Request) (*plan.Plan, error) {
	scenarioType := Classify(req)
	if a.isAmbiguous(req) {
		if llmType, err := a.classifyWithLLM(ctx, req); err == nil {
			scenarioType = llmType
		} else {
			a.log.Warn().Err(err).Msg("LLM classification failed, keeping heuristic result")
		}
	}
	return a.basic.buildFromTemplate(scenarioType, req)
}

// isAmbiguous reports whether the deterministic rules had real signal to
// work with.
func (a *Advanced) isAmbiguous(req scenario.Request) bool {
	return len(req.Positions) == 0 && len(req.Tickers) < 2
}

func (a *Advanced) classifyWithLLM(ctx context.Context, req scenario.Request) (scenario.Type, error) {
	var out struct {
		ScenarioType string `json:"scenario_type"`
	}
	if err := a.llm.CompleteJSON(ctx, classifySystemPrompt, req.Query, &out); err != nil {
		return "", err
	}
	scenarioType := scenario.Type(out.ScenarioType)
	if _, ok := scenario.TemplateFor(scenarioType); !ok {
		return "", fmt.Errorf("LLM returned unknown scenario type %q", out.ScenarioType)
	}
	return scenarioType, nil
}

const replanSystemPrompt = `You repair execution plans for a financial analysis agent.
Given the previous plan, the execution result and the limits, produce a corrected plan.
Respond with a single JSON object matching the plan structure you were given:
{"scenario_type": ..., "steps": [{"step_id", "type", "tool", "args", "depends_on", "tickers"}]}.
Only use tools that appear in the previous plan. No prose, JSON only.`

// Replan sends the condensed plan and execution result to the LLM and
// validates the returned plan. Any failure falls back to Basic.
func (a *Advanced) Replan(ctx context.Context, req scenario.Request, prev *plan.Plan, result *plan.ExecutionResult) (*plan.Plan, error) {
	next, err := a.replanWithLLM(ctx, prev, result)
	if err != nil {
		a.log.Warn().Err(err).Msg("LLM replan failed, falling back to basic")
		return a.basic.Replan(ctx, req, prev, result)
	}
	if err := a.validator.Validate(next); err != nil {
		a.log.Warn().Err(err).Msg("LLM replan rejected by validator, falling back to basic")
		return a.basic.Replan(ctx, req, prev, result)
	}
	return next, nil
}

func (a *Advanced) replanWithLLM(ctx context.Context, prev *plan.Plan, result *plan.ExecutionResult) (*plan.Plan, error) {
	prompt, err := replanPrompt(prev, result, a.validator)
	if err != nil {
		return nil, err
	}
	var next plan.Plan
	if err := a.llm.CompleteJSON(ctx, replanSystemPrompt, prompt, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func replanPrompt(prev *plan.Plan, result *plan.ExecutionResult, validator *plan.Validator) (string, error) {
	payload := map[string]any{
		"previous_plan":    prev,
		"execution_result": result,
		"limits": map[string]any{
			"max_steps":   validator.MaxSteps,
			"max_tickers": validator.MaxTickers,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal replan prompt: %w", err)
	}
	return string(raw), nil
}
