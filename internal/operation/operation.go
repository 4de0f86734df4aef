// Package operation defines the pluggable units of campaign work and the
// registry the worker pool dispatches through.
package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Result is the output of a successful invocation. Fields holds the
// operation's contribution to the campaign record, stored under the
// work item's record key.
type Result struct {
	Fields json.RawMessage
}

// Operation performs one kind of campaign work. Implementations are
// opaque to the pipeline; the worker only cares about the classification
// of returned errors.
type Operation interface {
	// Kind names the work-item kind this operation handles.
	Kind() string

	// Invoke runs the operation against the task input. ctx carries the
	// per-item deadline.
	Invoke(ctx context.Context, input json.RawMessage) (Result, error)
}

// Registry maps work-item kinds to operations.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds an operation, replacing any previous registration for
// the same kind.
func (r *Registry) Register(op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.Kind()] = op
}

// Lookup returns the operation for a kind. An unknown kind is a
// permanent error; redelivering the item cannot make it resolvable.
func (r *Registry) Lookup(kind string) (Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[kind]
	if !ok {
		return nil, Permanent(fmt.Errorf("no operation registered for kind %q", kind))
	}
	return op, nil
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.ops))
	for k := range r.ops {
		kinds = append(kinds, k)
	}
	return kinds
}
