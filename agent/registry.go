package agent

import (
	"sync"

	"github.com/saltpond/drover/llm"
)

// ToolRegistry holds the tools and stateful instances available to an
// AgentLoop. Tool names and instance names share one namespace: a name
// lives in at most one of the two maps, and a colliding registration fails
// without modifying the registry.
//
// Iteration order is insertion order, so the tool list sent to the backend
// is reproducible across runs.
type ToolRegistry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	instances map[string]any
	owned     map[string][]string // instance name -> extracted tool names
	order     []string            // tool names in insertion order
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:     make(map[string]Tool),
		instances: make(map[string]any),
		owned:     make(map[string][]string),
	}
}

// Add registers a single tool. The name must not collide with an existing
// tool or instance.
func (r *ToolRegistry) Add(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkName(tool.Name); err != nil {
		return err
	}
	r.insert(tool)
	return nil
}

// AddFunc converts a function into a Tool via FromFunction and registers
// it under the given name.
func (r *ToolRegistry) AddFunc(name, description string, fn any) error {
	tool, err := FromFunction(name, description, fn)
	if err != nil {
		return err
	}
	return r.Add(tool)
}

// AddInstance extracts tools from obj's methods and registers the instance
// plus every extracted tool atomically: if any name collides, the registry
// is left unchanged.
func (r *ToolRegistry) AddInstance(name string, obj any) error {
	tools, err := FromInstance(obj)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkName(name); err != nil {
		return err
	}
	for _, t := range tools {
		if err := r.checkName(t.Name); err != nil {
			return err
		}
	}

	r.instances[name] = obj
	owned := make([]string, 0, len(tools))
	for _, t := range tools {
		r.insert(t)
		owned = append(owned, t.Name)
	}
	r.owned[name] = owned
	return nil
}

// Get returns the tool registered under name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// GetInstance returns the instance registered under name.
func (r *ToolRegistry) GetInstance(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.instances[name]
	return obj, ok
}

// Remove deletes the tool or instance registered under name, reporting
// whether anything was removed. Removing an instance also removes the tools
// extracted from it.
func (r *ToolRegistry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; ok {
		r.remove(name)
		return true
	}
	if _, ok := r.instances[name]; ok {
		for _, tn := range r.owned[name] {
			r.remove(tn)
		}
		delete(r.owned, name)
		delete(r.instances, name)
		return true
	}
	return false
}

// Names returns all tool names in insertion order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Tools returns all registered tools in insertion order. Instances are not
// included; they are reachable only through GetInstance.
func (r *ToolRegistry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Schemas returns the wire-format tool descriptions in insertion order.
func (r *ToolRegistry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]llm.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// checkName reports a collision against both namespaces. Callers hold the
// write lock.
func (r *ToolRegistry) checkName(name string) error {
	if name == "" {
		return llm.NewConfigurationError("tool name must not be empty")
	}
	if _, ok := r.tools[name]; ok {
		return llm.NewConfigurationError("name %q is already registered as a tool", name)
	}
	if _, ok := r.instances[name]; ok {
		return llm.NewConfigurationError("name %q is already registered as an instance", name)
	}
	return nil
}

func (r *ToolRegistry) insert(tool Tool) {
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
}

func (r *ToolRegistry) remove(name string) {
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
