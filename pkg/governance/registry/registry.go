// Package registry holds the set of governance policies known to the engine.
//
// A Registry goes through two phases. During startup policies are added
// with Register; duplicate names and duplicate priorities are rejected.
// Seal then publishes an immutable snapshot that every later read uses
// without locking. Registration after sealing fails with
// governance.ErrRegistrySealed.
package registry

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"mercator-hq/arbiter/pkg/governance"
)

// snapshot is the read-only view published at seal time.
type snapshot struct {
	ordered []governance.Policy
	byName  map[string]governance.Policy
}

// Registry stores policies keyed by name and ordered by priority.
type Registry struct {
	mu         sync.Mutex
	byName     map[string]governance.Policy
	byPriority map[int]string

	sealed atomic.Pointer[snapshot]
	logger *slog.Logger
}

// New creates an empty, unsealed registry.
func New() *Registry {
	return &Registry{
		byName:     make(map[string]governance.Policy),
		byPriority: make(map[int]string),
		logger:     slog.Default().With("component", "registry"),
	}
}

// Register adds a policy. Names and priorities must be unique.
func (r *Registry) Register(policy governance.Policy) error {
	if policy == nil {
		return &governance.InvalidPolicyError{Message: "policy cannot be nil"}
	}
	name := policy.Name()
	if name == "" {
		return &governance.InvalidPolicyError{Message: "policy name cannot be empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() != nil {
		return governance.ErrRegistrySealed
	}
	if _, ok := r.byName[name]; ok {
		return governance.NewDuplicateNameError(name)
	}
	if holder, ok := r.byPriority[policy.Priority()]; ok {
		return governance.NewDuplicatePriorityError(policy.Priority(), holder, name)
	}

	r.byName[name] = policy
	r.byPriority[policy.Priority()] = name

	r.logger.Debug("policy registered",
		"policy", name,
		"priority", policy.Priority(),
		"mandatory", governance.IsMandatory(policy),
	)
	return nil
}

// RegisterAll registers policies in order and stops at the first failure.
func (r *Registry) RegisterAll(policies ...governance.Policy) error {
	for _, p := range policies {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Seal ends the registration phase. It is idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() != nil {
		return
	}

	snap := &snapshot{
		ordered: r.orderedLocked(),
		byName:  make(map[string]governance.Policy, len(r.byName)),
	}
	for name, p := range r.byName {
		snap.byName[name] = p
	}
	r.sealed.Store(snap)

	r.logger.Info("policy registry sealed", "policies", len(snap.ordered))
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load() != nil
}

// Lookup returns the policy registered under name.
func (r *Registry) Lookup(name string) (governance.Policy, error) {
	if snap := r.sealed.Load(); snap != nil {
		if p, ok := snap.byName[name]; ok {
			return p, nil
		}
		return nil, governance.NewNotFoundError(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.byName[name]; ok {
		return p, nil
	}
	return nil, governance.NewNotFoundError(name)
}

// All returns every policy in ascending priority order. The returned slice
// is a copy.
func (r *Registry) All() []governance.Policy {
	if snap := r.sealed.Load(); snap != nil {
		return slices.Clone(snap.ordered)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderedLocked()
}

// Count returns the number of registered policies.
func (r *Registry) Count() int {
	if snap := r.sealed.Load(); snap != nil {
		return len(snap.ordered)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

// orderedLocked must be called with mu held.
func (r *Registry) orderedLocked() []governance.Policy {
	out := make([]governance.Policy, 0, len(r.byName))
	for _, p := range r.byName {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b governance.Policy) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return out
}
