package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// Registry holds the tools available to the researcher.
//
// Tools are registered at startup and never removed. Lookups are safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewDefaultRegistry creates a registry holding the built-in research tools.
func NewDefaultRegistry(news ...NewsOption) *Registry {
	r := NewRegistry()
	for _, tool := range Builtin(news...) {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	if tool.Name() == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool '%s' is already registered", tool.Name())
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up a tool and validates args against its schema. Unknown
// tools and invalid arguments yield a non-transient *agenkit.ToolInvocationError.
func (r *Registry) Resolve(name string, args map[string]interface{}) (Tool, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, &agenkit.ToolInvocationError{
			Tool:    name,
			Message: fmt.Sprintf("unknown tool; available tools: %s", strings.Join(r.List(), ", ")),
		}
	}
	if err := tool.Schema().Validate(args); err != nil {
		return nil, &agenkit.ToolInvocationError{
			Tool:    name,
			Message: err.Error(),
		}
	}
	return tool, nil
}

// Describe returns a formatted description of all available tools.
func (r *Registry) Describe() string {
	names := r.List()
	if len(names) == 0 {
		return "No tools available."
	}

	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, name := range names {
		tool, _ := r.Get(name)
		sb.WriteString(fmt.Sprintf("- %s(%s): %s\n", name, tool.Schema().Describe(), tool.Description()))
	}
	return sb.String()
}
