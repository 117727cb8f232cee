package requirements

import (
	"fmt"
	"sync"
	"time"
)

// RequirementStore manages persistence for one survey's requirement set.
// List returns requirements in declaration order; the engine and the
// verdict's error ordering both depend on it.
type RequirementStore interface {
	// Add a new requirement at the end of the set
	Add(r *Requirement) error

	// Get a requirement by ID
	Get(id string) (*Requirement, error)

	// List the full set in declaration order
	List() ([]*Requirement, error)

	// Update an existing requirement in place
	Update(r *Requirement) error

	// Delete a requirement
	Delete(id string) error
}

// InMemoryRequirementStore implements RequirementStore with an ordered
// slice plus an ID index. Thread-safe.
type InMemoryRequirementStore struct {
	ordered []*Requirement
	byID    map[string]int
	mu      sync.RWMutex
}

// NewInMemoryRequirementStore creates an empty in-memory store.
func NewInMemoryRequirementStore() *InMemoryRequirementStore {
	return &InMemoryRequirementStore{
		byID: make(map[string]int),
	}
}

// Add appends a requirement, enforcing unique IDs and field names and
// stamping the timestamps.
func (s *InMemoryRequirementStore) Add(r *Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[r.ID]; exists {
		return fmt.Errorf("requirement with ID %s already exists", r.ID)
	}
	for _, existing := range s.ordered {
		if existing.FieldName == r.FieldName {
			return fmt.Errorf("requirement for field %s already exists", r.FieldName)
		}
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.byID[r.ID] = len(s.ordered)
	s.ordered = append(s.ordered, r)
	return nil
}

// Get retrieves a requirement by ID.
func (s *InMemoryRequirementStore) Get(id string) (*Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, exists := s.byID[id]
	if !exists {
		return nil, fmt.Errorf("requirement with ID %s not found", id)
	}
	return s.ordered[i], nil
}

// List returns the set in declaration order.
func (s *InMemoryRequirementStore) List() ([]*Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Requirement, len(s.ordered))
	copy(out, s.ordered)
	return out, nil
}

// Update replaces a requirement, preserving its position and CreatedAt.
func (s *InMemoryRequirementStore) Update(r *Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, exists := s.byID[r.ID]
	if !exists {
		return fmt.Errorf("requirement with ID %s not found", r.ID)
	}

	r.CreatedAt = s.ordered[i].CreatedAt
	r.UpdatedAt = time.Now()
	s.ordered[i] = r
	return nil
}

// Delete removes a requirement, closing the gap in declaration order.
func (s *InMemoryRequirementStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, exists := s.byID[id]
	if !exists {
		return fmt.Errorf("requirement with ID %s not found", id)
	}

	s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
	delete(s.byID, id)
	for j := i; j < len(s.ordered); j++ {
		s.byID[s.ordered[j].ID] = j
	}
	return nil
}
