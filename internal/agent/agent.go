// Package agent wires the planner, orchestrator and formatter into the
// request loop: build a plan, execute it, re-plan on structured failures
// within the strategy's attempt budget, then format the answer.
package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosfin/analyst/internal/agent/formatter"
	"github.com/mosfin/analyst/internal/agent/orchestrator"
	"github.com/mosfin/analyst/internal/agent/planner"
	"github.com/mosfin/analyst/internal/agent/session"
	"github.com/mosfin/analyst/internal/agui"
)

// Config holds the request-loop settings.
type Config struct {
	DefaultLookback    time.Duration
	DefaultIndexTicker string
}

// Agent runs one request end to end.
type Agent struct {
	strategy  planner.Strategy
	orch      *orchestrator.Orchestrator
	formatter *formatter.Formatter
	cfg       Config
	log       zerolog.Logger
}

// New wires the agent.
func New(strategy planner.Strategy, orch *orchestrator.Orchestrator, f *formatter.Formatter, cfg Config, log zerolog.Logger) *Agent {
	if cfg.DefaultLookback <= 0 {
		cfg.DefaultLookback = 365 * 24 * time.Hour
	}
	if cfg.DefaultIndexTicker == "" {
		cfg.DefaultIndexTicker = "IMOEX"
	}
	return &Agent{strategy: strategy, orch: orch, formatter: f, cfg: cfg, log: log.With().Str("component", "agent").Logger()}
}

// Run executes one request and returns the formatted output. Domain
// failures are reported inside the output, not as a Go error; the error
// return is reserved for plans that could not be built at all.
func (a *Agent) Run(ctx context.Context, sess *session.Context) (*formatter.Output, error) {
	req := planner.ParseRequest(sess.LastUserMessage(), time.Now(), a.cfg.DefaultLookback, a.cfg.DefaultIndexTicker)
	req.Debug = sess.Debug

	p, err := a.strategy.BuildPlan(ctx, req)
	if err != nil {
		return nil, err
	}
	sess.SetPlan(p)

	seenSignatures := map[string]bool{p.Signature(): true}
	result := a.orch.Execute(ctx, sess, p)

	for attempt := 0; result.HasErrors() && attempt < a.strategy.MaxReplans() && ctx.Err() == nil; attempt++ {
		next, err := a.strategy.Replan(ctx, req, p, result)
		if err != nil {
			a.log.Info().Err(err).Msg("No replan available, keeping failed result")
			break
		}
		if seenSignatures[next.Signature()] {
			a.log.Info().Msg("Replan produced a duplicate plan, rejecting")
			break
		}
		seenSignatures[next.Signature()] = true

		p = next
		sess.SetPlan(p)
		result = a.orch.Execute(ctx, sess, p)
	}

	out := a.formatter.Format(ctx, sess, p, result)
	if failed, ok := result.FirstError(); ok {
		out.ErrorMessage = failed.ErrorMessage
	}
	return out, nil
}

// streamChunkSize is the delta size for TEXT_MESSAGE_CONTENT events.
const streamChunkSize = 200

// RunStreaming executes the request and narrates it over the AG-UI
// stream: exactly one RUN_STARTED, one text message, one state snapshot
// and one terminal event.
func (a *Agent) RunStreaming(ctx context.Context, sess *session.Context, stream *agui.Stream) {
	stream.RunStarted(ctx)

	out, err := a.Run(ctx, sess)
	if err != nil {
		stream.Error(ctx, err.Error(), "PLAN_BUILD_FAILED")
		return
	}
	if ctx.Err() != nil {
		// Client disconnected mid-run; the writer already stopped.
		return
	}

	messageID := stream.StartMessage(ctx)
	for _, delta := range chunk(out.Text, streamChunkSize) {
		stream.Content(ctx, messageID, delta)
	}
	stream.EndMessage(ctx, messageID)

	snapshot := agui.StateSnapshot{
		Status:       "ok",
		SchemaValid:  out.SchemaValid,
		SchemaErrors: out.SchemaErrors,
		Text:         out.Text,
	}
	if out.Dashboard != nil {
		snapshot.Dashboard = out.Dashboard
	}
	if out.ErrorMessage != "" {
		snapshot.Status = "error"
		snapshot.Error = out.ErrorMessage
	}
	stream.Snapshot(ctx, snapshot)

	if out.ErrorMessage != "" {
		stream.Error(ctx, out.ErrorMessage, "")
		return
	}
	stream.Finish(ctx)
}

// chunk splits text into rune-safe deltas of at most size bytes each.
func chunk(text string, size int) []string {
	if text == "" {
		return []string{""}
	}
	var chunks []string
	current := make([]rune, 0, size)
	for _, r := range text {
		current = append(current, r)
		if len(current) >= size {
			chunks = append(chunks, string(current))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}
