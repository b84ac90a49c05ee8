// Package orchestrator executes a plan in topological order with bounded
// parallelism, classifying every failure into the shared error taxonomy
// and producing the structured execution result that drives re-planning.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/agent/session"
	"github.com/mosfin/analyst/internal/domain"
	"github.com/mosfin/analyst/internal/mcp"
)

// ToolCaller routes one tool call to the server that owns it. The
// mcpclient router is the production implementation.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.Envelope, error)
}

// Config bounds one orchestration pass.
type Config struct {
	Parallelism int           // default 4
	StepTimeout time.Duration // default 20s
}

// Orchestrator runs plans against the MCP tool router.
type Orchestrator struct {
	router ToolCaller
	cfg    Config
	log    zerolog.Logger
}

// New builds an orchestrator.
func New(router ToolCaller, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 20 * time.Second
	}
	return &Orchestrator{router: router, cfg: cfg, log: log.With().Str("component", "orchestrator").Logger()}
}

// Execute runs the plan wave by wave: every step whose dependencies have
// completed successfully runs in the current wave, in parallel up to the
// configured limit. A failed step marks its transitive dependents
// skipped; a step flagged fatal short-circuits the remaining waves so the
// planner can rewrite the plan.
func (o *Orchestrator) Execute(ctx context.Context, sess *session.Context, p *plan.Plan) *plan.ExecutionResult {
	start := time.Now()
	result := &plan.ExecutionResult{}

	parallelism := o.cfg.Parallelism
	if p.Parallelism > 0 && p.Parallelism < parallelism {
		parallelism = p.Parallelism
	}

	done := make(map[int]plan.StepStatus, len(p.Steps))
	pending := make([]plan.Step, len(p.Steps))
	copy(pending, p.Steps)

	shortCircuit := false
	for len(pending) > 0 && !shortCircuit && ctx.Err() == nil {
		wave, rest := nextWave(pending, done)
		if len(wave) == 0 {
			// Remaining steps depend on failed or skipped work.
			for _, step := range rest {
				executed := plan.ExecutedStep{StepID: step.ID, Tool: step.Tool, Status: plan.StatusSkipped}
				sess.AppendExecuted(executed)
				result.Steps = append(result.Steps, executed)
				done[step.ID] = plan.StatusSkipped
			}
			break
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(parallelism)
		waveResults := make([]plan.ExecutedStep, len(wave))
		for i, step := range wave {
			i, step := i, step
			group.Go(func() error {
				if p.BackoffMS > 0 {
					select {
					case <-time.After(time.Duration(p.BackoffMS) * time.Millisecond):
					case <-groupCtx.Done():
						return groupCtx.Err()
					}
				}
				waveResults[i] = o.runStep(groupCtx, sess, step)
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			for i, executed := range waveResults {
				if executed.StepID == 0 && wave[i].ID != 0 {
					waveResults[i] = plan.ExecutedStep{StepID: wave[i].ID, Tool: wave[i].Tool, Status: plan.StatusSkipped}
				}
			}
		}

		for i, executed := range waveResults {
			sess.AppendExecuted(executed)
			result.Steps = append(result.Steps, executed)
			done[executed.StepID] = executed.Status
			if executed.Status == plan.StatusError {
				if executed.ErrorCategory.IsFatal() {
					result.HasFatalError = true
				}
				if wave[i].Fatal {
					shortCircuit = true
				}
			}
		}
		pending = rest
	}

	result.TotalDurationMS = time.Since(start).Milliseconds()
	return result
}

// nextWave splits pending into runnable steps and the remainder. A step
// is runnable when every dependency finished ok; a step with a failed or
// skipped dependency is not runnable now and never will be.
func nextWave(pending []plan.Step, done map[int]plan.StepStatus) (wave, rest []plan.Step) {
	for _, step := range pending {
		runnable := true
		for _, dep := range step.DependsOn {
			if done[dep] != plan.StatusOK {
				runnable = false
				break
			}
		}
		if runnable {
			wave = append(wave, step)
		} else {
			rest = append(rest, step)
		}
	}
	return wave, rest
}

func (o *Orchestrator) runStep(ctx context.Context, sess *session.Context, step plan.Step) plan.ExecutedStep {
	start := time.Now()
	executed := plan.ExecutedStep{StepID: step.ID, Tool: step.Tool}

	switch step.Type {
	case plan.StepMCPCall:
		o.runMCPCall(ctx, sess, step, &executed)
	case plan.StepLimitPortfolio:
		// The planner already applied the truncation; the step records
		// the others bucket for the formatter and the debug block.
		sess.StoreResult(step.ID, step.Args)
		executed.Status = plan.StatusOK
		executed.ResultDigest = fmt.Sprintf("portfolio limited, others_weight=%v", step.Args["others_weight"])
	case plan.StepExplanation:
		// Narrative generation happens in the formatter after all data
		// steps are in.
		executed.Status = plan.StatusOK
		executed.ResultDigest = "narrative deferred to formatter"
	case plan.StepRAGSearch:
		executed.Status = plan.StatusSkipped
		executed.ResultDigest = "rag backend not configured"
	default:
		executed.Status = plan.StatusError
		executed.ErrorCategory = domain.CategoryValidation
		executed.ErrorMessage = fmt.Sprintf("unknown step type %q", step.Type)
	}

	executed.DurationMS = time.Since(start).Milliseconds()
	return executed
}

func (o *Orchestrator) runMCPCall(ctx context.Context, sess *session.Context, step plan.Step, executed *plan.ExecutedStep) {
	args, err := o.resolveArgs(sess, step)
	if err != nil {
		executed.Status = plan.StatusError
		executed.ErrorCategory = domain.Categorize(err)
		executed.ErrorMessage = err.Error()
		return
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()

	envelope, err := o.router.CallTool(stepCtx, step.Tool, args)
	if err != nil {
		executed.Status = plan.StatusError
		executed.ErrorCategory = domain.Categorize(err)
		executed.ErrorMessage = err.Error()
		o.log.Warn().Str("tool", step.Tool).Int("step", step.ID).
			Str("category", string(executed.ErrorCategory)).Msg("Step failed")
		return
	}

	sess.StoreResult(step.ID, envelope.Data)
	executed.Status = plan.StatusOK
	executed.ResultDigest = digest(envelope.Data)
}

// resolveArgs merges literal args with arg_refs resolved against earlier
// step results ("steps.<id>.<dotted.path>").
func (o *Orchestrator) resolveArgs(sess *session.Context, step plan.Step) (map[string]any, error) {
	args := make(map[string]any, len(step.Args)+len(step.ArgRefs))
	for k, v := range step.Args {
		args[k] = v
	}
	for name, ref := range step.ArgRefs {
		value, err := resolveRef(sess, ref)
		if err != nil {
			return nil, domain.NewValidationError(name, "unresolvable reference %q: %v", ref, err)
		}
		args[name] = value
	}
	return args, nil
}

func resolveRef(sess *session.Context, ref string) (any, error) {
	parts := strings.Split(ref, ".")
	if len(parts) < 2 || parts[0] != "steps" {
		return nil, fmt.Errorf("reference must start with steps.<id>")
	}
	stepID, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid step id %q", parts[1])
	}
	data, ok := sess.Result(stepID)
	if !ok {
		return nil, fmt.Errorf("step %d has no stored result", stepID)
	}

	// Round-trip through JSON so typed payloads and generic maps resolve
	// the same way.
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	for _, key := range parts[2:] {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path segment %q is not an object", key)
		}
		node, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("path segment %q not found", key)
		}
	}
	return node, nil
}

// digest is a short, loggable summary of a step result.
func digest(data any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	const maxDigest = 120
	s := string(raw)
	if len(s) > maxDigest {
		return s[:maxDigest] + "..."
	}
	return s
}
