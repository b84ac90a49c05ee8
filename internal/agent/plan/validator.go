package plan

import (
	"github.com/mosfin/analyst/internal/domain"
)

// defaultCostCeiling bounds the summed cost rank of a plan. It tracks the
// LLM-token budget of one request: a plan past this ceiling would not fit
// a single formatter context anyway.
const defaultCostCeiling = 30

// Validator gates plans before execution.
type Validator struct {
	MaxSteps    int
	MaxTickers  int
	CostCeiling int

	// CostRank resolves a tool's advertised cost; nil disables the
	// cost ceiling check.
	CostRank func(tool string) int
}

// Validate checks the plan invariants: unique step ids, every dependency
// resolves to an earlier step (which also guarantees acyclicity), step
// count and distinct-ticker caps, and the cost ceiling.
func (v *Validator) Validate(p *Plan) error {
	if p == nil || len(p.Steps) == 0 {
		return domain.NewValidationError("plan", "plan has no steps")
	}
	if v.MaxSteps > 0 && len(p.Steps) > v.MaxSteps {
		return domain.NewValidationError("plan", "plan has %d steps, limit is %d", len(p.Steps), v.MaxSteps)
	}

	position := make(map[int]int, len(p.Steps))
	for i, step := range p.Steps {
		if _, dup := position[step.ID]; dup {
			return domain.NewValidationError("plan", "duplicate step id %d", step.ID)
		}
		position[step.ID] = i
	}
	for i, step := range p.Steps {
		for _, dep := range step.DependsOn {
			depPos, ok := position[dep]
			if !ok {
				return domain.NewValidationError("plan", "step %d depends on unknown step %d", step.ID, dep)
			}
			if depPos >= i {
				return domain.NewValidationError("plan", "step %d depends on step %d which does not precede it", step.ID, dep)
			}
		}
	}

	if v.MaxTickers > 0 {
		if tickers := p.DistinctTickers(); len(tickers) > v.MaxTickers {
			return domain.NewError(domain.CategoryTooManyTickers,
				"plan references %d distinct tickers, limit is %d", len(tickers), v.MaxTickers)
		}
	}

	if v.CostRank != nil {
		ceiling := v.CostCeiling
		if ceiling <= 0 {
			ceiling = defaultCostCeiling
		}
		total := 0
		for _, step := range p.Steps {
			if step.Type == StepMCPCall {
				total += v.CostRank(step.Tool)
			}
		}
		if total > ceiling {
			return domain.NewValidationError("plan", "estimated plan cost %d exceeds ceiling %d", total, ceiling)
		}
	}
	return nil
}
