package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/agent/scenario"
)

// External delegates planning to a remote agent with the same contract.
// On timeout or any error it falls back to the Basic strategy.
type External struct {
	basic     *Basic
	url       string
	http      *http.Client
	validator *plan.Validator
	log       zerolog.Logger
}

// NewExternal builds the delegating strategy.
func NewExternal(basic *Basic, cfg Config, validator *plan.Validator, log zerolog.Logger) *External {
	timeout := cfg.ExternalTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &External{
		basic:     basic,
		url:       cfg.ExternalURL,
		http:      &http.Client{Timeout: timeout},
		validator: validator,
		log:       log.With().Str("component", "planner-external").Logger(),
	}
}

func (e *External) Name() string    { return "external_agent" }
func (e *External) MaxReplans() int { return maxReplansAdvanced }

type externalRequest struct {
	Action          string                `json:"action"` // build | replan
	Query           string                `json:"query"`
	Request         scenario.Request      `json:"request"`
	PreviousPlan    *plan.Plan            `json:"previous_plan,omitempty"`
	ExecutionResult *plan.ExecutionResult `json:"execution_result,omitempty"`
}

// BuildPlan asks the remote planner for an initial plan.
func (e *External) BuildPlan(ctx context.Context, req scenario.Request) (*plan.Plan, error) {
	next, err := e.call(ctx, externalRequest{Action: "build", Query: req.Query, Request: req})
	if err != nil {
		e.log.Warn().Err(err).Msg("External planner failed, falling back to basic")
		return e.basic.BuildPlan(ctx, req)
	}
	if err := e.validator.Validate(next); err != nil {
		e.log.Warn().Err(err).Msg("External plan rejected by validator, falling back to basic")
		return e.basic.BuildPlan(ctx, req)
	}
	return next, nil
}

// Replan asks the remote planner for a replacement plan.
func (e *External) Replan(ctx context.Context, req scenario.Request, prev *plan.Plan, result *plan.ExecutionResult) (*plan.Plan, error) {
	next, err := e.call(ctx, externalRequest{
		Action:          "replan",
		Query:           req.Query,
		Request:         req,
		PreviousPlan:    prev,
		ExecutionResult: result,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("External replan failed, falling back to basic")
		return e.basic.Replan(ctx, req, prev, result)
	}
	if err := e.validator.Validate(next); err != nil {
		e.log.Warn().Err(err).Msg("External replan rejected by validator, falling back to basic")
		return e.basic.Replan(ctx, req, prev, result)
	}
	return next, nil
}

func (e *External) call(ctx context.Context, payload externalRequest) (*plan.Plan, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal external planner request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build external planner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call external planner: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("external planner returned HTTP %d", resp.StatusCode)
	}

	var next plan.Plan
	if err := json.NewDecoder(resp.Body).Decode(&next); err != nil {
		return nil, fmt.Errorf("decode external planner response: %w", err)
	}
	return &next, nil
}
