// Package registry holds the record-type descriptors the engine serves.
// Types are registered once at startup, either in code or from the resources
// manifest, and read concurrently afterwards.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zekoder/zecore/modules/record/domain/types"
	recordsvc "github.com/zekoder/zecore/modules/record/services"
)

// Registration is everything the engine needs to serve one record type.
type Registration struct {
	Descriptor types.Descriptor
	// AllowedAggregates lists the columns aggregate queries may touch.
	AllowedAggregates []string
	// Rules configures expression-driven lifecycle hooks. Zero value means
	// no rules.
	Rules recordsvc.RuleHooksConfig
}

type Registry struct {
	mu     sync.RWMutex
	byName map[string]Registration
}

func New() *Registry {
	return &Registry{byName: make(map[string]Registration)}
}

// Register normalizes the descriptor and stores the registration. A name can
// only be registered once.
func (r *Registry) Register(reg Registration) error {
	if reg.Descriptor.Name == "" {
		return fmt.Errorf("registry: descriptor without a name")
	}
	reg.Descriptor.Normalize()
	for _, col := range reg.AllowedAggregates {
		if !reg.Descriptor.HasColumn(col) {
			return fmt.Errorf("registry: %s allows aggregation over unknown column %q", reg.Descriptor.Name, col)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[reg.Descriptor.Name]; exists {
		return fmt.Errorf("registry: %s already registered", reg.Descriptor.Name)
	}
	r.byName[reg.Descriptor.Name] = reg
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (types.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	return reg.Descriptor, ok
}

// Registration returns the full registration under name.
func (r *Registry) Registration(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	return reg, ok
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
