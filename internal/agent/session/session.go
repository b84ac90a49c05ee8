// Package session holds the per-request state of one agent run: the
// immutable input, the active plan, the append-only execution history and
// the accumulated tool results.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mosfin/analyst/internal/agent/plan"
)

// Message is one turn of the incoming conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is the per-request session. It is owned by a single request
// handler; the mutex guards the cross-goroutine appends the orchestrator
// makes while steps run in parallel.
type Context struct {
	ID       string
	Messages []Message
	Locale   string
	UserRole string
	Debug    bool

	startedAt time.Time

	mu          sync.Mutex
	plan        *plan.Plan
	executed    []plan.ExecutedStep
	toolResults map[int]any
	errorLog    []string
}

// New creates a session for one request. A caller-supplied id continues
// an existing conversation; an empty id starts a new one.
func New(id string, messages []Message, locale, userRole string, debug bool) *Context {
	if id == "" {
		id = uuid.NewString()
	}
	return &Context{
		ID:          id,
		Messages:    messages,
		Locale:      locale,
		UserRole:    userRole,
		Debug:       debug,
		startedAt:   time.Now(),
		toolResults: make(map[int]any),
	}
}

// LastUserMessage returns the content of the most recent user turn.
func (c *Context) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == "user" {
			return c.Messages[i].Content
		}
	}
	return ""
}

// SetPlan installs the active plan. Re-plans replace the whole arena.
func (c *Context) SetPlan(p *plan.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plan = p
}

// Plan returns the active plan.
func (c *Context) Plan() *plan.Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plan
}

// AppendExecuted records one finished step in completion order.
func (c *Context) AppendExecuted(step plan.ExecutedStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executed = append(c.executed, step)
	if step.Status == plan.StatusError {
		c.errorLog = append(c.errorLog, step.ErrorMessage)
	}
}

// ExecutedSteps returns a copy of the execution history.
func (c *Context) ExecutedSteps() []plan.ExecutedStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]plan.ExecutedStep, len(c.executed))
	copy(out, c.executed)
	return out
}

// StoreResult keeps a step's data payload for later steps and the
// formatter.
func (c *Context) StoreResult(stepID int, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolResults[stepID] = data
}

// Result returns a stored step result.
func (c *Context) Result(stepID int) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.toolResults[stepID]
	return data, ok
}

// Results returns a shallow copy of all stored results keyed by step id.
func (c *Context) Results() map[int]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]any, len(c.toolResults))
	for k, v := range c.toolResults {
		out[k] = v
	}
	return out
}

// ErrorLog returns the accumulated error messages.
func (c *Context) ErrorLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.errorLog))
	copy(out, c.errorLog)
	return out
}

// Elapsed is the time since the session started.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.startedAt)
}
