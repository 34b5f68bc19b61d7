package contract

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a set of validated contracts keyed by name.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*Contract
}

// NewRegistry creates a registry holding the given contracts.
func NewRegistry(contracts ...*Contract) (*Registry, error) {
	r := &Registry{contracts: make(map[string]*Contract, len(contracts))}
	for _, c := range contracts {
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add validates c and stores a private copy of it.
func (r *Registry) Add(c *Contract) error {
	if c == nil {
		return fmt.Errorf("contract must not be nil")
	}
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contracts[c.Name]; exists {
		return fmt.Errorf("duplicate contract name %q", c.Name)
	}
	r.contracts[c.Name] = c.Clone()
	return nil
}

// Get returns a copy of the named contract.
func (r *Registry) Get(name string) (*Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contracts[name]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// All returns copies of every contract, sorted by name.
func (r *Registry) All() []*Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of contracts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}
