// Package health aggregates per-subsystem health probes for the /health
// endpoint.
package health

import (
	"context"
	"fmt"
	"sync"
)

// Status is the outcome of one subsystem probe.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one subsystem. It must respect ctx deadlines; a probe that
// hangs takes the whole /health response with it.
type Checker func(ctx context.Context) Status

// Registry runs registered probes on demand, in registration order.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	probes map[string]Checker
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Checker)}
}

// Register adds a probe. Registering the same name twice replaces the
// earlier probe but keeps its position.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.probes[name]; !exists {
		r.names = append(r.names, name)
	}
	r.probes[name] = check
}

// CheckAll runs every probe and reports the aggregate plus per-subsystem
// results. A panicking probe is reported as unhealthy rather than crashing
// the health endpoint.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	probes := make(map[string]Checker, len(r.probes))
	for name, probe := range r.probes {
		probes[name] = probe
	}
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, 0, len(names))
	for _, name := range names {
		st := runProbe(ctx, name, probes[name])
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}

func runProbe(ctx context.Context, name string, probe Checker) (st Status) {
	defer func() {
		if recovered := recover(); recovered != nil {
			st = Status{Name: name, Healthy: false, Detail: fmt.Sprintf("probe panicked: %v", recovered)}
		}
	}()
	return probe(ctx)
}
