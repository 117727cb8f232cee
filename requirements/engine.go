package requirements

import (
	"fmt"
	"sync"
)

// Engine manages one survey's requirement set: it keeps the compiled form
// cached, validates submissions against it, and recompiles on mutation.
// Mutations validate the whole candidate set before touching the store, so
// a misconfigured requirement (cycle, dangling reference, bad params) is
// rejected up front and the persisted set always compiles.
//
// Safe for concurrent use: validation takes concurrent read paths, and the
// compiled set is swapped atomically under a write lock.
type Engine struct {
	store      RequirementStore
	cache      CompiledCache
	validators *ValidatorRegistry
	mu         sync.RWMutex
}

// NewEngine creates an engine over the store and compiles the current set.
// A nil registry disables custom validators; their requirements then fail
// per-field with "validator not available".
func NewEngine(store RequirementStore, validators *ValidatorRegistry) (*Engine, error) {
	en := &Engine{
		store:      store,
		cache:      NewInMemoryCompiledCache(DefaultCacheConfig()),
		validators: validators,
	}

	if _, err := en.Recompile(); err != nil {
		return nil, fmt.Errorf("failed to compile requirement set: %w", err)
	}

	return en, nil
}

// NewEngineWithCache creates an engine with a caller-supplied cache, for
// hosts that share or instrument compiled-set caching.
func NewEngineWithCache(store RequirementStore, validators *ValidatorRegistry, cache CompiledCache) (*Engine, error) {
	en := &Engine{
		store:      store,
		cache:      cache,
		validators: validators,
	}

	if _, err := en.Recompile(); err != nil {
		return nil, fmt.Errorf("failed to compile requirement set: %w", err)
	}

	return en, nil
}

// Recompile loads the set from the store, compiles it, and refreshes the
// cache.
func (en *Engine) Recompile() (*CompiledSet, error) {
	reqs, err := en.store.List()
	if err != nil {
		return nil, err
	}

	cs, err := Compile(reqs)
	if err != nil {
		return nil, err
	}

	en.cache.Set(cs)
	return cs, nil
}

// compiled returns the cached set, recompiling on a miss.
func (en *Engine) compiled() (*CompiledSet, error) {
	if cs := en.cache.Get(); cs != nil {
		return cs, nil
	}
	return en.Recompile()
}

// Validate checks a submission against the survey's requirement set.
func (en *Engine) Validate(submission map[string]any) (*Verdict, error) {
	en.mu.RLock()
	defer en.mu.RUnlock()

	cs, err := en.compiled()
	if err != nil {
		return nil, err
	}
	return cs.Validate(submission, en.validators), nil
}

// Requirements returns the current set in declaration order.
func (en *Engine) Requirements() ([]*Requirement, error) {
	return en.store.List()
}

// GetRequirement returns one requirement by ID.
func (en *Engine) GetRequirement(id string) (*Requirement, error) {
	return en.store.Get(id)
}

// AddRequirement appends a requirement after verifying the grown set still
// compiles.
func (en *Engine) AddRequirement(r *Requirement) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	current, err := en.store.List()
	if err != nil {
		return err
	}

	candidate := make([]*Requirement, 0, len(current)+1)
	candidate = append(candidate, current...)
	candidate = append(candidate, r)

	cs, err := Compile(candidate)
	if err != nil {
		return fmt.Errorf("requirement validation failed: %w", err)
	}

	if err := en.store.Add(r); err != nil {
		return err
	}

	en.cache.Set(cs)
	return nil
}

// UpdateRequirement replaces a requirement after verifying the modified
// set still compiles.
func (en *Engine) UpdateRequirement(r *Requirement) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	current, err := en.store.List()
	if err != nil {
		return err
	}

	candidate := make([]*Requirement, len(current))
	found := false
	for i, existing := range current {
		if existing.ID == r.ID {
			candidate[i] = r
			found = true
		} else {
			candidate[i] = existing
		}
	}
	if !found {
		return fmt.Errorf("requirement with ID %s not found", r.ID)
	}

	cs, err := Compile(candidate)
	if err != nil {
		return fmt.Errorf("requirement validation failed: %w", err)
	}

	if err := en.store.Update(r); err != nil {
		return err
	}

	en.cache.Set(cs)
	return nil
}

// DeleteRequirement removes a requirement. Deletion can orphan conditions
// that referenced the field, so the shrunk set is compiled first too.
func (en *Engine) DeleteRequirement(id string) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	current, err := en.store.List()
	if err != nil {
		return err
	}

	candidate := make([]*Requirement, 0, len(current))
	found := false
	for _, existing := range current {
		if existing.ID == id {
			found = true
			continue
		}
		candidate = append(candidate, existing)
	}
	if !found {
		return fmt.Errorf("requirement with ID %s not found", id)
	}

	cs, err := Compile(candidate)
	if err != nil {
		return fmt.Errorf("requirement validation failed: %w", err)
	}

	if err := en.store.Delete(id); err != nil {
		return err
	}

	en.cache.Set(cs)
	return nil
}
