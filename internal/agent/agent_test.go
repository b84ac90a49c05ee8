package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosfin/analyst/internal/agent/formatter"
	"github.com/mosfin/analyst/internal/agent/orchestrator"
	"github.com/mosfin/analyst/internal/agent/plan"
	"github.com/mosfin/analyst/internal/agent/scenario"
	"github.com/mosfin/analyst/internal/agent/session"
	"github.com/mosfin/analyst/internal/agui"
	"github.com/mosfin/analyst/internal/domain"
	"github.com/mosfin/analyst/internal/mcp"
)

// scriptedStrategy returns a fixed initial plan and a queue of replans.
type scriptedStrategy struct {
	initial    *plan.Plan
	buildErr   error
	replans    []*plan.Plan
	replanErr  error
	maxReplans int

	mu          sync.Mutex
	replanCalls int
}

func (s *scriptedStrategy) Name() string    { return "scripted" }
func (s *scriptedStrategy) MaxReplans() int { return s.maxReplans }

func (s *scriptedStrategy) BuildPlan(context.Context, scenario.Request) (*plan.Plan, error) {
	return s.initial, s.buildErr
}

func (s *scriptedStrategy) Replan(context.Context, scenario.Request, *plan.Plan, *plan.ExecutionResult) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replanCalls++
	if s.replanErr != nil {
		return nil, s.replanErr
	}
	if len(s.replans) == 0 {
		return nil, fmt.Errorf("no replan scripted")
	}
	next := s.replans[0]
	s.replans = s.replans[1:]
	return next, nil
}

// flakyRouter fails a tool a fixed number of times before succeeding.
type flakyRouter struct {
	mu       sync.Mutex
	failures map[string]int
	calls    int
}

func (f *flakyRouter) CallTool(_ context.Context, name string, _ map[string]any) (*mcp.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures[name] > 0 {
		f.failures[name]--
		return nil, domain.NewError(domain.CategoryRateLimit, "ISS rate limit hit")
	}
	return &mcp.Envelope{Data: map[string]any{"ticker": "SBER", "last": 285.5, "prev_close": 280.0}}, nil
}

func stepPlan(arg string) *plan.Plan {
	return &plan.Plan{
		ScenarioType: "single_security_overview",
		Steps: []plan.Step{
			{ID: 1, Type: plan.StepMCPCall, Tool: "get_security_snapshot",
				Args: map[string]any{"ticker": "SBER", "variant": arg}},
		},
	}
}

func newAgent(strategy *scriptedStrategy, router orchestrator.ToolCaller) *Agent {
	orch := orchestrator.New(router, orchestrator.Config{}, zerolog.Nop())
	f := formatter.New(nil, zerolog.Nop())
	return New(strategy, orch, f, Config{}, zerolog.Nop())
}

func newRunSession() *session.Context {
	return session.New("", []session.Message{{Role: "user", Content: "обзор SBER"}}, "ru", "analyst", false)
}

func TestRun_Success(t *testing.T) {
	strategy := &scriptedStrategy{initial: stepPlan("a"), maxReplans: 2}
	router := &flakyRouter{failures: map[string]int{}}

	out, err := newAgent(strategy, router).Run(context.Background(), newRunSession())
	require.NoError(t, err)

	assert.Empty(t, out.ErrorMessage)
	assert.Contains(t, out.Text, "SBER last price: 285.50.")
	assert.Equal(t, 0, strategy.replanCalls)
}

func TestRun_ReplanRecoversFromFailure(t *testing.T) {
	strategy := &scriptedStrategy{
		initial:    stepPlan("a"),
		replans:    []*plan.Plan{stepPlan("b")},
		maxReplans: 2,
	}
	router := &flakyRouter{failures: map[string]int{"get_security_snapshot": 1}}

	out, err := newAgent(strategy, router).Run(context.Background(), newRunSession())
	require.NoError(t, err)

	assert.Equal(t, 1, strategy.replanCalls)
	assert.Empty(t, out.ErrorMessage, "second attempt succeeded")
}

func TestRun_DuplicateReplanSignatureStopsLoop(t *testing.T) {
	strategy := &scriptedStrategy{
		initial:    stepPlan("a"),
		replans:    []*plan.Plan{stepPlan("a"), stepPlan("b")},
		maxReplans: 5,
	}
	router := &flakyRouter{failures: map[string]int{"get_security_snapshot": 10}}

	out, err := newAgent(strategy, router).Run(context.Background(), newRunSession())
	require.NoError(t, err)

	// The first replan repeats the failed plan's signature, so the loop
	// stops without trying the second one.
	assert.Equal(t, 1, strategy.replanCalls)
	assert.Contains(t, out.ErrorMessage, "ISS rate limit hit")
	require.NotNil(t, out.Debug, "failed runs carry the debug block")
}

func TestRun_ReplanBudgetIsBounded(t *testing.T) {
	strategy := &scriptedStrategy{
		initial:    stepPlan("a"),
		replans:    []*plan.Plan{stepPlan("b"), stepPlan("c"), stepPlan("d"), stepPlan("e")},
		maxReplans: 2,
	}
	router := &flakyRouter{failures: map[string]int{"get_security_snapshot": 10}}

	out, err := newAgent(strategy, router).Run(context.Background(), newRunSession())
	require.NoError(t, err)

	assert.Equal(t, 2, strategy.replanCalls)
	assert.Contains(t, out.ErrorMessage, "ISS rate limit hit")
}

func TestRun_NoReplanAvailableKeepsFailedResult(t *testing.T) {
	strategy := &scriptedStrategy{
		initial:    stepPlan("a"),
		replanErr:  fmt.Errorf("no heuristic rewrite for category VALIDATION_ERROR"),
		maxReplans: 2,
	}
	router := &flakyRouter{failures: map[string]int{"get_security_snapshot": 10}}

	out, err := newAgent(strategy, router).Run(context.Background(), newRunSession())
	require.NoError(t, err)

	assert.Equal(t, 1, strategy.replanCalls)
	assert.NotEmpty(t, out.ErrorMessage)
}

func TestRun_PlanBuildFailureIsAnError(t *testing.T) {
	strategy := &scriptedStrategy{buildErr: fmt.Errorf("unsupported scenario")}

	_, err := newAgent(strategy, &flakyRouter{}).Run(context.Background(), newRunSession())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scenario")
}

func collectStreamEvents(t *testing.T, a *Agent, sess *session.Context) []agui.Event {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	stream := agui.NewStream(sess.ID, func() { once.Do(cancel) }, zerolog.Nop())
	rec := httptest.NewRecorder()

	go a.RunStreaming(ctx, sess, stream)

	done := make(chan struct{})
	go func() {
		defer close(done)
		stream.Serve(ctx, rec)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate")
	}

	var events []agui.Event
	for _, frame := range strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n") {
		lines := strings.SplitN(frame, "\n", 2)
		require.Len(t, lines, 2)
		var event agui.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestRunStreaming_SuccessfulRun(t *testing.T) {
	strategy := &scriptedStrategy{initial: stepPlan("a"), maxReplans: 2}
	a := newAgent(strategy, &flakyRouter{})

	events := collectStreamEvents(t, a, newRunSession())

	require.NotEmpty(t, events)
	assert.Equal(t, agui.EventRunStarted, events[0].Type)
	assert.Equal(t, agui.EventRunFinished, events[len(events)-1].Type)

	var text strings.Builder
	sawSnapshot := false
	for _, e := range events {
		switch e.Type {
		case agui.EventTextMessageContent:
			text.WriteString(e.Delta)
		case agui.EventStateSnapshot:
			sawSnapshot = true
		}
	}
	assert.Contains(t, text.String(), "SBER last price: 285.50.")
	assert.True(t, sawSnapshot)
}

func TestRunStreaming_PlanBuildFailure(t *testing.T) {
	strategy := &scriptedStrategy{buildErr: fmt.Errorf("unsupported scenario")}
	a := newAgent(strategy, &flakyRouter{})

	events := collectStreamEvents(t, a, newRunSession())

	require.Len(t, events, 2)
	assert.Equal(t, agui.EventRunError, events[1].Type)
	assert.Equal(t, "PLAN_BUILD_FAILED", events[1].Code)
	assert.Contains(t, events[1].Message, "unsupported scenario")
}

func TestChunk_RuneSafety(t *testing.T) {
	text := strings.Repeat("я", 450)
	chunks := chunk(text, 200)

	require.Len(t, chunks, 3)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.True(t, len([]rune(c)) <= 200)
	}
}

func TestChunk_EmptyTextYieldsOneEmptyDelta(t *testing.T) {
	assert.Equal(t, []string{""}, chunk("", 200))
}
