package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// FlowRepository implements ports.FlowRepository over an in-memory set of flows.
// Replace swaps the whole set atomically, so readers never see a partial reload.
type FlowRepository struct {
	mu     sync.RWMutex
	byID   map[string]*domain.FlowDefinition
	byName map[string]*domain.FlowDefinition
}

// NewFlowRepository indexes the given flows.
func NewFlowRepository(flows ...*domain.FlowDefinition) (*FlowRepository, error) {
	r := &FlowRepository{}
	if err := r.Replace(flows); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace installs a new flow set. Ids and names must be unique.
func (r *FlowRepository) Replace(flows []*domain.FlowDefinition) error {
	byID := make(map[string]*domain.FlowDefinition, len(flows))
	byName := make(map[string]*domain.FlowDefinition, len(flows))
	for _, f := range flows {
		if f == nil || f.ID == "" {
			return fmt.Errorf("flow missing ID")
		}
		if _, dup := byID[f.ID]; dup {
			return fmt.Errorf("duplicate flow id %q", f.ID)
		}
		byID[f.ID] = f
		if f.Name == "" {
			continue
		}
		if _, dup := byName[f.Name]; dup {
			return fmt.Errorf("duplicate flow name %q", f.Name)
		}
		byName[f.Name] = f
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = byID
	r.byName = byName
	return nil
}

// Get returns the flow with the given id.
func (r *FlowRepository) Get(id string) (*domain.FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", domain.ErrFlowNotFound, id)
	}
	return f, nil
}

// GetByName returns the flow with the given name.
func (r *FlowRepository) GetByName(name string) (*domain.FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: name %q", domain.ErrFlowNotFound, name)
	}
	return f, nil
}

// List returns all flows sorted by id.
func (r *FlowRepository) List() ([]*domain.FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	flows := make([]*domain.FlowDefinition, 0, len(r.byID))
	for _, f := range r.byID {
		flows = append(flows, f)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].ID < flows[j].ID })
	return flows, nil
}
