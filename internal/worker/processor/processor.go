// Package processor holds the metric implementations a worker can run.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"mteval/internal/model"
)

// Processor scores one leased job
type Processor interface {
	Process(ctx context.Context, job *model.JobInfo) (*model.JobResultRequest, error)
}

// Func adapts a function to Processor
type Func func(ctx context.Context, job *model.JobInfo) (*model.JobResultRequest, error)

func (f Func) Process(ctx context.Context, job *model.JobInfo) (*model.JobResultRequest, error) {
	return f(ctx, job)
}

// Options processor configuration, decoded from the worker's --config JSON
type Options map[string]interface{}

// ParseOptions decodes a JSON object; an empty string yields empty options
func ParseOptions(raw string) (Options, error) {
	opts := Options{}
	if raw == "" {
		return opts, nil
	}
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}
	return opts, nil
}

// Bool returns a boolean option or def
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// Factory builds a processor from options
type Factory func(opts Options) (Processor, error)

// Definition a registered metric
type Definition struct {
	Name               string
	RequiresReferences bool
	New                Factory
}

// Registry maps metric names to definitions
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition, replacing any with the same name
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
}

// Lookup finds a definition by metric name
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names lists registered metrics in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the processor registered under name
func (r *Registry) Build(name string, opts Options) (Processor, Definition, error) {
	def, ok := r.Lookup(name)
	if !ok {
		return nil, Definition{}, fmt.Errorf("unknown metric %q", name)
	}
	p, err := def.New(opts)
	if err != nil {
		return nil, Definition{}, fmt.Errorf("metric %s: %w", name, err)
	}
	return p, def, nil
}

// Default returns a registry with the built-in metrics
func Default() *Registry {
	r := NewRegistry()
	r.Register(Definition{Name: ExactMatchName, RequiresReferences: true, New: newExactMatch})
	r.Register(Definition{Name: LengthRatioName, RequiresReferences: false, New: newLengthRatio})
	return r
}
