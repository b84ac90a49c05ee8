package mcp

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/mosfin/analyst/internal/domain"
)

const (
	defaultGlobalConcurrency = 16
	defaultCallTimeout       = 30 * time.Second
)

// DispatcherConfig tunes the dispatch core.
type DispatcherConfig struct {
	GlobalConcurrency int           // per-process cap across all tools; defaults to 16
	CallTimeout       time.Duration // per-call deadline; defaults to 30s
}

// Dispatcher executes tool calls against a registry: resolve, validate,
// bound concurrency, invoke with a deadline and wrap the result in the
// uniform envelope. It is transport-agnostic; HTTP and SSE front ends
// both call Dispatch.
type Dispatcher struct {
	registry *Registry
	global   *semaphore.Weighted
	metrics  *Metrics
	timeout  time.Duration
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher over registry. metrics may be nil.
func NewDispatcher(registry *Registry, metrics *Metrics, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	globalCap := cfg.GlobalConcurrency
	if globalCap <= 0 {
		globalCap = defaultGlobalConcurrency
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Dispatcher{
		registry: registry,
		global:   semaphore.NewWeighted(int64(globalCap)),
		metrics:  metrics,
		timeout:  timeout,
		log:      log.With().Str("component", "mcp-dispatcher").Logger(),
	}
}

// Registry exposes the tool directory for transports serving tools/list.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs one tool call end to end and always returns an envelope;
// failures are carried in the envelope's error block, never as a bare Go
// error, so every transport emits the same shape.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) Envelope {
	started := time.Now()

	tool, ok := d.registry.Get(name)
	if !ok {
		return d.fail(name, started, domain.NewError(domain.CategoryUnknownTool, "unknown tool %q", name))
	}

	if tool.schema != nil {
		if args == nil {
			args = map[string]any{}
		}
		if err := tool.schema.Validate(any(args)); err != nil {
			return d.fail(name, started, domain.NewValidationError("arguments", "%s", err.Error()))
		}
	}

	if err := d.global.Acquire(ctx, 1); err != nil {
		return d.fail(name, started, domain.WrapError(domain.CategoryISSTimeout, err, "cancelled waiting for global slot"))
	}
	defer d.global.Release(1)

	if err := tool.sem.Acquire(ctx, 1); err != nil {
		return d.fail(name, started, domain.WrapError(domain.CategoryISSTimeout, err, "cancelled waiting for tool slot"))
	}
	defer tool.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	data, metrics, err := d.invoke(callCtx, tool, args)
	if err != nil {
		d.log.Warn().
			Err(err).
			Str("tool", name).
			Str("category", string(domain.Categorize(err))).
			Msg("Tool call failed")
		return d.fail(name, started, err)
	}

	duration := time.Since(started)
	d.metrics.observeCall(name, duration.Seconds())

	return Envelope{
		Metadata: Metadata{AsOf: time.Now().UTC(), Tool: name, DurationMS: duration.Milliseconds()},
		Data:     data,
		Metrics:  metrics,
	}
}

// invoke runs the handler with panic recovery. A panicking tool maps to
// an UNKNOWN category instead of tearing down the process or leaking a
// stack trace to the client.
func (d *Dispatcher) invoke(ctx context.Context, tool *Tool, args map[string]any) (data any, metrics map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("tool", tool.Name).
				Interface("panic", r).
				Msg("Tool handler panicked")
			data, metrics = nil, nil
			err = domain.NewError(domain.CategoryUnknown, "internal error in tool %s", tool.Name)
		}
	}()
	return tool.handler(ctx, args)
}

func (d *Dispatcher) fail(name string, started time.Time, err error) Envelope {
	duration := time.Since(started)
	d.metrics.observeCall(name, duration.Seconds())
	d.metrics.observeError(name, string(domain.Categorize(err)))
	return Envelope{
		Metadata: Metadata{AsOf: time.Now().UTC(), Tool: name, DurationMS: duration.Milliseconds()},
		Error:    errorInfoFrom(err),
	}
}
