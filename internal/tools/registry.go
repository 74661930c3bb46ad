// ABOUTME: Immutable registry of tool descriptors served by tools/list.
// ABOUTME: Built once at startup and shared read-only across sessions.

package tools

import (
	"encoding/json"
	"fmt"
)

// Descriptor describes one tool: its catalog name, a human description and the
// JSON Schema of its arguments.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Registry is an ordered, immutable tool catalog. It is safe for concurrent use
// without locking because nothing mutates it after NewRegistry returns.
type Registry struct {
	ordered []Descriptor
	byName  map[string]int
}

// NewRegistry builds a registry from the given descriptors, preserving order.
// Duplicate or empty names are rejected.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		ordered: make([]Descriptor, 0, len(descriptors)),
		byName:  make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("tool name cannot be empty")
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("tool already registered: %s", d.Name)
		}
		r.byName[d.Name] = len(r.ordered)
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

// List returns the full catalog in registration order. The slice is a copy;
// schemas are shared and must be treated as read-only.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.ordered[i], true
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, d := range r.ordered {
		names[i] = d.Name
	}
	return names
}
