package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/agent/session"
	"github.com/mosfin/analyst/internal/domain"
	"github.com/mosfin/analyst/internal/mcp"
)

// fakeRouter records tool calls and serves scripted envelopes or errors.
type fakeRouter struct {
	mu        sync.Mutex
	calls     []string
	args      map[string]map[string]any
	responses map[string]any // data payload per tool
	errs      map[string]error
	inFlight  int
	peak      int
	delay     time.Duration
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		args:      make(map[string]map[string]any),
		responses: make(map[string]any),
		errs:      make(map[string]error),
	}
}

func (f *fakeRouter) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.Envelope, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.args[name] = args
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	err := f.errs[name]
	data := f.responses[name]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &mcp.Envelope{Data: data}, nil
}

func newSession() *session.Context {
	return session.New("", []session.Message{{Role: "user", Content: "test"}}, "ru", "analyst", false)
}

func TestExecute_TopologicalOrderAndResults(t *testing.T) {
	router := newFakeRouter()
	router.responses["first"] = map[string]any{"value": 42}
	router.responses["second"] = map[string]any{"ok": true}

	orch := New(router, Config{}, zerolog.Nop())
	sess := newSession()
	p := &plan.Plan{Steps: []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "first"},
		{ID: 2, Type: plan.StepMCPCall, Tool: "second", DependsOn: []int{1}},
		{ID: 3, Type: plan.StepExplanation, DependsOn: []int{1, 2}},
	}}

	result := orch.Execute(context.Background(), sess, p)

	require.Len(t, result.Steps, 3)
	assert.False(t, result.HasErrors())
	assert.Equal(t, []string{"first", "second"}, router.calls)
	for _, s := range result.Steps {
		assert.Equal(t, plan.StatusOK, s.Status)
	}

	stored, ok := sess.Result(1)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": 42}, stored)
	assert.Len(t, sess.ExecutedSteps(), 3)
}

func TestExecute_IndependentStepsRunInParallel(t *testing.T) {
	router := newFakeRouter()
	router.delay = 50 * time.Millisecond
	for _, tool := range []string{"a", "b", "c"} {
		router.responses[tool] = map[string]any{}
	}

	orch := New(router, Config{Parallelism: 4}, zerolog.Nop())
	p := &plan.Plan{Steps: []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "a"},
		{ID: 2, Type: plan.StepMCPCall, Tool: "b"},
		{ID: 3, Type: plan.StepMCPCall, Tool: "c"},
	}}

	start := time.Now()
	result := orch.Execute(context.Background(), newSession(), p)
	elapsed := time.Since(start)

	assert.False(t, result.HasErrors())
	assert.GreaterOrEqual(t, router.peak, 2, "independent steps should overlap")
	assert.Less(t, elapsed, 140*time.Millisecond, "three 50ms steps must not run serially")
}

func TestExecute_PlanParallelismHintBoundsWorkers(t *testing.T) {
	router := newFakeRouter()
	router.delay = 30 * time.Millisecond
	for _, tool := range []string{"a", "b", "c"} {
		router.responses[tool] = map[string]any{}
	}

	orch := New(router, Config{Parallelism: 4}, zerolog.Nop())
	p := &plan.Plan{
		Parallelism: 1,
		Steps: []plan.Step{
			{ID: 1, Type: plan.StepMCPCall, Tool: "a"},
			{ID: 2, Type: plan.StepMCPCall, Tool: "b"},
			{ID: 3, Type: plan.StepMCPCall, Tool: "c"},
		},
	}

	orch.Execute(context.Background(), newSession(), p)
	assert.Equal(t, 1, router.peak)
}

func TestExecute_FailedDependencySkipsDependents(t *testing.T) {
	router := newFakeRouter()
	router.errs["broken"] = domain.NewError(domain.CategoryRateLimit, "ISS rate limit hit")
	router.responses["independent"] = map[string]any{}

	orch := New(router, Config{}, zerolog.Nop())
	p := &plan.Plan{Steps: []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "broken"},
		{ID: 2, Type: plan.StepMCPCall, Tool: "dependent", DependsOn: []int{1}},
		{ID: 3, Type: plan.StepMCPCall, Tool: "independent"},
	}}

	result := orch.Execute(context.Background(), newSession(), p)

	byID := make(map[int]plan.ExecutedStep)
	for _, s := range result.Steps {
		byID[s.StepID] = s
	}
	assert.Equal(t, plan.StatusError, byID[1].Status)
	assert.Equal(t, domain.CategoryRateLimit, byID[1].ErrorCategory)
	assert.Equal(t, plan.StatusSkipped, byID[2].Status)
	assert.Equal(t, plan.StatusOK, byID[3].Status)

	assert.True(t, result.HasErrors())
	assert.False(t, result.HasFatalError, "RATE_LIMIT is recoverable")
	assert.NotContains(t, router.calls, "dependent")
}

func TestExecute_FatalStepShortCircuits(t *testing.T) {
	router := newFakeRouter()
	router.errs["critical"] = domain.NewError(domain.CategoryISS5xx, "ISS server error")
	router.responses["later"] = map[string]any{}

	orch := New(router, Config{}, zerolog.Nop())
	p := &plan.Plan{Steps: []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "critical", Fatal: true},
		{ID: 2, Type: plan.StepMCPCall, Tool: "later", DependsOn: []int{1}},
	}}

	result := orch.Execute(context.Background(), newSession(), p)

	assert.True(t, result.HasFatalError)
	require.Len(t, result.Steps, 1)
	assert.NotContains(t, router.calls, "later")
}

func TestExecute_ArgRefResolution(t *testing.T) {
	router := newFakeRouter()
	router.responses["producer"] = map[string]any{
		"summary": map[string]any{"total_weight": 0.95},
	}
	router.responses["consumer"] = map[string]any{}

	orch := New(router, Config{}, zerolog.Nop())
	p := &plan.Plan{Steps: []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "producer"},
		{ID: 2, Type: plan.StepMCPCall, Tool: "consumer", DependsOn: []int{1},
			Args:    map[string]any{"literal": "x"},
			ArgRefs: map[string]string{"weight": "steps.1.summary.total_weight"}},
	}}

	result := orch.Execute(context.Background(), newSession(), p)
	assert.False(t, result.HasErrors())

	args := router.args["consumer"]
	assert.Equal(t, "x", args["literal"])
	assert.Equal(t, 0.95, args["weight"])
}

func TestExecute_UnresolvableRefFailsStep(t *testing.T) {
	router := newFakeRouter()
	router.responses["producer"] = map[string]any{"a": 1}

	orch := New(router, Config{}, zerolog.Nop())
	p := &plan.Plan{Steps: []plan.Step{
		{ID: 1, Type: plan.StepMCPCall, Tool: "producer"},
		{ID: 2, Type: plan.StepMCPCall, Tool: "consumer", DependsOn: []int{1},
			ArgRefs: map[string]string{"v": "steps.1.missing.path"}},
	}}

	result := orch.Execute(context.Background(), newSession(), p)

	byID := make(map[int]plan.ExecutedStep)
	for _, s := range result.Steps {
		byID[s.StepID] = s
	}
	assert.Equal(t, plan.StatusError, byID[2].Status)
	assert.Equal(t, domain.CategoryValidation, byID[2].ErrorCategory)
	assert.NotContains(t, router.calls, "consumer")
}

func TestExecute_NonMCPStepTypes(t *testing.T) {
	orch := New(newFakeRouter(), Config{}, zerolog.Nop())
	sess := newSession()
	p := &plan.Plan{Steps: []plan.Step{
		{ID: 1, Type: plan.StepLimitPortfolio, Args: map[string]any{"others_weight": 0.2}},
		{ID: 2, Type: plan.StepRAGSearch},
		{ID: 3, Type: plan.StepExplanation},
	}}

	result := orch.Execute(context.Background(), sess, p)

	byID := make(map[int]plan.ExecutedStep)
	for _, s := range result.Steps {
		byID[s.StepID] = s
	}
	assert.Equal(t, plan.StatusOK, byID[1].Status)
	assert.Equal(t, plan.StatusSkipped, byID[2].Status)
	assert.Equal(t, plan.StatusOK, byID[3].Status)

	stored, ok := sess.Result(1)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"others_weight": 0.2}, stored)
}
