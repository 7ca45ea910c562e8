package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/longregen/alicia-sub010/pkg/assistant"
	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// Registry manages the device tool set. It is safe for concurrent use and
// satisfies assistant.ToolRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return &InvalidArgsError{Tool: "registry", Message: "tool cannot be nil"}
	}
	name := tool.Name()
	if name == "" {
		return &InvalidArgsError{Tool: "registry", Message: "tool name cannot be empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return &ToolAlreadyExistsError{Name: name}
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return &ToolNotFoundError{Name: name}
	}
	delete(r.tools, name)
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Lookup implements assistant.ToolRegistry.
func (r *Registry) Lookup(name string) (assistant.ToolExecutor, bool) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	return tool, true
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Descriptors implements assistant.ToolRegistry. The list is sorted by name.
func (r *Registry) Descriptors() []protocol.ToolDescriptor {
	names := r.Names()
	out := make([]protocol.ToolDescriptor, 0, len(names))
	for _, name := range names {
		tool, ok := r.Get(name)
		if !ok {
			continue
		}
		out = append(out, protocol.ToolDescriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return out
}

// Execute runs a tool by name.
func (r *Registry) Execute(ctx context.Context, name string, args protocol.Map) (protocol.Value, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, &ToolNotFoundError{Name: name}
	}
	return tool.Execute(ctx, args)
}
