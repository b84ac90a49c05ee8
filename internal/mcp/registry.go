package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/semaphore"
)

// defaultToolConcurrency bounds concurrent executions of a single tool.
const defaultToolConcurrency = 4

// Handler executes one tool call. It returns the data payload and an
// optional metrics block; errors must carry a domain category.
type Handler func(ctx context.Context, args map[string]any) (any, map[string]any, error)

// ToolSpec declares a tool for registration.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema string // JSON Schema document for the arguments object
	CostRank    int    // relative execution cost, used by plan validation
	Concurrency int    // max parallel executions; defaults to 4
	Handler     Handler
}

// Tool is a registered tool with its compiled schema and semaphore.
type Tool struct {
	Name        string
	Description string
	InputSchema string
	CostRank    int

	schema  *jsonschema.Schema
	sem     *semaphore.Weighted
	handler Handler
}

// Registry is the named-tool directory. It is populated once at boot and
// read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register compiles the tool's input schema and adds it to the directory.
// Registering a duplicate name is a programming error and fails loudly.
func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", spec.Name)
	}

	var schema *jsonschema.Schema
	if spec.InputSchema != "" {
		var doc any
		if err := json.Unmarshal([]byte(spec.InputSchema), &doc); err != nil {
			return fmt.Errorf("tool %s: unmarshal input schema: %w", spec.Name, err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", doc); err != nil {
			return fmt.Errorf("tool %s: add schema resource: %w", spec.Name, err)
		}
		compiled, err := compiler.Compile("schema.json")
		if err != nil {
			return fmt.Errorf("tool %s: compile schema: %w", spec.Name, err)
		}
		schema = compiled
	}

	concurrency := spec.Concurrency
	if concurrency <= 0 {
		concurrency = defaultToolConcurrency
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	r.tools[spec.Name] = &Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: spec.InputSchema,
		CostRank:    spec.CostRank,
		schema:      schema,
		sem:         semaphore.NewWeighted(int64(concurrency)),
		handler:     spec.Handler,
	}
	return nil
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// ToolInfo is the public description of a registered tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	CostRank    int             `json:"cost_rank"`
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for _, tool := range r.tools {
		info := ToolInfo{Name: tool.Name, Description: tool.Description, CostRank: tool.CostRank}
		if tool.InputSchema != "" {
			info.InputSchema = json.RawMessage(tool.InputSchema)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
