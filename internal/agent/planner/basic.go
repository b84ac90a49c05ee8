package planner

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/agent/scenario"
	"github.com/mosfin/analyst/internal/domain"
)

const maxReplansBasic = 1

// Basic is the heuristic strategy: deterministic keyword classification
// and category-keyed plan rewrites. It is also the fallback for the
// Advanced and External strategies.
type Basic struct {
	cfg       Config
	validator *plan.Validator
	log       zerolog.Logger
}

// NewBasic builds the heuristic strategy.
func NewBasic(cfg Config, validator *plan.Validator, log zerolog.Logger) *Basic {
	return &Basic{cfg: cfg, validator: validator, log: log.With().Str("component", "planner-basic").Logger()}
}

func (b *Basic) Name() string    { return "basic" }
func (b *Basic) MaxReplans() int { return maxReplansBasic }

// BuildPlan classifies the request, applies the ticker cap with a
// synthetic limit_portfolio step, instantiates the scenario template and
// validates the result.
func (b *Basic) BuildPlan(_ context.Context, req scenario.Request) (*plan.Plan, error) {
	scenarioType := Classify(req)
	return b.buildFromTemplate(scenarioType, req)
}

func (b *Basic) buildFromTemplate(scenarioType scenario.Type, req scenario.Request) (*plan.Plan, error) {
	template, ok := scenario.TemplateFor(scenarioType)
	if !ok {
		return nil, domain.NewValidationError("scenario", "unknown scenario type %q", scenarioType)
	}

	var limitStep *plan.Step
	if b.cfg.MaxTickers > 0 && len(req.Positions) > b.cfg.MaxTickers {
		req, limitStep = b.limitPortfolio(req)
	}

	steps := template.Build(req)
	if limitStep != nil {
		renumbered := make([]plan.Step, 0, len(steps)+1)
		renumbered = append(renumbered, *limitStep)
		for _, s := range steps {
			s.ID += limitStep.ID
			for i := range s.DependsOn {
				s.DependsOn[i] += limitStep.ID
			}
			renumbered = append(renumbered, s)
		}
		steps = renumbered
	}

	p := &plan.Plan{ScenarioType: string(scenarioType), Steps: steps}
	if b.validator.CostRank != nil {
		for _, s := range steps {
			if s.Type == plan.StepMCPCall {
				p.CostRank += b.validator.CostRank(s.Tool)
			}
		}
	}
	if err := b.validator.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// limitPortfolio truncates to the top-N positions by weight, renormalises
// the kept weights and returns the synthetic step that records the
// "others" bucket.
func (b *Basic) limitPortfolio(req scenario.Request) (scenario.Request, *plan.Step) {
	sorted := make([]domain.Position, len(req.Positions))
	copy(sorted, req.Positions)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight > sorted[j].Weight
		}
		return sorted[i].Ticker < sorted[j].Ticker
	})

	kept := sorted[:b.cfg.MaxTickers]
	othersWeight := 0.0
	for _, p := range sorted[b.cfg.MaxTickers:] {
		othersWeight += p.Weight
	}

	keptSum := 1 - othersWeight
	renormalised := make([]domain.Position, len(kept))
	for i, p := range kept {
		p.Weight = p.Weight / keptSum
		renormalised[i] = p
	}

	req.Positions = renormalised
	req.Tickers = nil
	for _, p := range renormalised {
		req.Tickers = append(req.Tickers, p.Ticker)
	}

	return req, &plan.Step{
		ID:   1,
		Type: plan.StepLimitPortfolio,
		Args: map[string]any{
			"kept":          b.cfg.MaxTickers,
			"dropped":       len(sorted) - b.cfg.MaxTickers,
			"others_weight": othersWeight,
		},
	}
}

// Replan rewrites the failed plan keyed by the first error category:
// DATE_RANGE_TOO_LARGE halves the window, TOO_MANY_TICKERS shrinks the
// portfolio, RATE_LIMIT serialises execution with backoff, ISS_TIMEOUT
// retries tickers one at a time. Fatal categories produce no rewrite.
func (b *Basic) Replan(_ context.Context, req scenario.Request, prev *plan.Plan, result *plan.ExecutionResult) (*plan.Plan, error) {
	failed, ok := result.FirstError()
	if !ok {
		return nil, domain.NewError(domain.CategoryUnknown, "replan requested without a failed step")
	}

	var next *plan.Plan
	var err error
	switch failed.ErrorCategory {
	case domain.CategoryDateRangeTooLarge:
		next, err = b.halveWindow(req, prev)
	case domain.CategoryTooManyTickers, domain.CategoryInvalidTicker:
		next, err = b.shrinkTickers(req, failed)
	case domain.CategoryRateLimit:
		next, err = b.serialiseWithBackoff(prev)
	case domain.CategoryISSTimeout:
		next, err = b.serialiseWithBackoff(prev)
	default:
		return nil, domain.NewError(failed.ErrorCategory, "no heuristic rewrite for %s: %s", failed.ErrorCategory, failed.ErrorMessage)
	}
	if err != nil {
		return nil, err
	}
	if err := b.validator.Validate(next); err != nil {
		return nil, err
	}
	return next, nil
}

// halveWindow shrinks [from, to] to its latter half, repeatedly when one
// halving still exceeds the lookback limit, then rebuilds the plan from
// the same template.
func (b *Basic) halveWindow(req scenario.Request, prev *plan.Plan) (*plan.Plan, error) {
	from, err := time.Parse("2006-01-02", req.FromDate)
	if err != nil {
		return nil, domain.NewValidationError("from_date", "cannot rewrite window: %v", err)
	}
	to, err := time.Parse("2006-01-02", req.ToDate)
	if err != nil {
		return nil, domain.NewValidationError("to_date", "cannot rewrite window: %v", err)
	}

	maxLookback := b.cfg.MaxLookbackDays
	if maxLookback <= 0 {
		maxLookback = 730
	}
	window := to.Sub(from)
	for {
		window /= 2
		if window < 24*time.Hour {
			return nil, domain.NewError(domain.CategoryDateRangeTooLarge, "window cannot be narrowed further")
		}
		if int(window.Hours()/24) <= maxLookback {
			break
		}
	}

	req.FromDate = to.Add(-window).Format("2006-01-02")
	b.log.Info().Str("from", req.FromDate).Str("to", req.ToDate).Msg("Replanning with halved window")
	return b.buildFromTemplate(scenario.Type(prev.ScenarioType), req)
}

// shrinkTickers drops the smallest positions (or the trailing tickers)
// and rebuilds. On INVALID_TICKER the offending request shrinks the same
// way: retry with a subset.
func (b *Basic) shrinkTickers(req scenario.Request, failed plan.ExecutedStep) (*plan.Plan, error) {
	scenarioType := Classify(req)
	switch {
	case len(req.Positions) > 2:
		sorted := make([]domain.Position, len(req.Positions))
		copy(sorted, req.Positions)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })
		keep := (len(sorted) + 1) / 2
		kept := sorted[:keep]
		sum := 0.0
		for _, p := range kept {
			sum += p.Weight
		}
		for i := range kept {
			kept[i].Weight /= sum
		}
		req.Positions = kept
		req.Tickers = nil
		for _, p := range kept {
			req.Tickers = append(req.Tickers, p.Ticker)
		}
	case len(req.Tickers) > 2:
		req.Tickers = req.Tickers[:(len(req.Tickers)+1)/2]
	default:
		return nil, domain.NewError(failed.ErrorCategory, "cannot shrink below two tickers: %s", failed.ErrorMessage)
	}
	b.log.Info().Int("tickers", len(req.Tickers)).Msg("Replanning with shrunk ticker set")
	return b.buildFromTemplate(scenarioType, req)
}

// serialiseWithBackoff chains every step behind its predecessor and adds
// an inter-step pause, so the retry runs one upstream call at a time.
func (b *Basic) serialiseWithBackoff(prev *plan.Plan) (*plan.Plan, error) {
	steps := make([]plan.Step, len(prev.Steps))
	copy(steps, prev.Steps)
	for i := 1; i < len(steps); i++ {
		steps[i].DependsOn = []int{steps[i-1].ID}
	}
	next := &plan.Plan{
		ScenarioType: prev.ScenarioType,
		Steps:        steps,
		CostRank:     prev.CostRank,
		Parallelism:  1,
		BackoffMS:    500,
	}
	b.log.Info().Msg("Replanning serialised with backoff")
	return next, nil
}
