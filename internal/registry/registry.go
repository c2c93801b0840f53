// Package registry implements the Worker Registry (C1): a capability index
// over registered workers, mirroring agent_registry.py's AgentRegistry but
// expressed as a thread-safe Go store guarding its map with a sync.RWMutex.
package registry

import (
	"sync"

	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/worker"
)

// DependencyError reports that a worker declared (via worker.Descriptor) a
// required capability that has no worker registered for it yet (§4.1:
// create(capability, config) → worker | dependency_error). Registration
// order matters: register a capability's providers before registering
// anything that declares a dependency on it.
type DependencyError struct {
	Capability string
	Missing    []string
}

func (e *DependencyError) Error() string {
	msg := "capability " + e.Capability + " is missing required dependencies:"
	for i, m := range e.Missing {
		if i > 0 {
			msg += ","
		}
		msg += " " + m
	}
	return msg
}

// entry is one registered worker instance plus its static descriptor.
type entry struct {
	id     string
	w      worker.Worker
	desc   model.WorkerDescriptor
}

// Registry indexes workers by id and by capability. Registration is
// idempotent by id — registering the same id twice replaces the entry
// rather than erroring, mirroring agent_registry.py's upsert semantics.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]entry
	byCapability map[string]map[string]struct{} // capability -> set of ids
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID:         make(map[string]entry),
		byCapability: make(map[string]map[string]struct{}),
	}
}

// Register adds or replaces a worker under id, indexing it by its
// capability. If w implements worker.Descriptor and declares
// RequiredCapability, every one of those capabilities must already have at
// least one worker registered — otherwise Register refuses the
// registration and returns a *DependencyError, mirroring §4.1's
// create(capability, config) → worker | dependency_error. A worker that
// only implements worker.Worker has no declared dependencies and always
// registers.
func (r *Registry) Register(id string, w worker.Worker) error {
	desc := model.WorkerDescriptor{Capability: w.Capability()}
	if d, ok := w.(worker.Descriptor); ok {
		desc = d.Describe()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if missing := r.missingLocked(desc.RequiredCapability); len(missing) > 0 {
		return &DependencyError{Capability: desc.Capability, Missing: missing}
	}

	if old, exists := r.byID[id]; exists {
		r.removeFromIndexLocked(old.desc.Capability, id)
	}

	r.byID[id] = entry{id: id, w: w, desc: desc}
	r.addToIndexLocked(desc.Capability, id)
	return nil
}

func (r *Registry) missingLocked(required []string) []string {
	var missing []string
	for _, cap := range required {
		if len(r.byCapability[cap]) == 0 {
			missing = append(missing, cap)
		}
	}
	return missing
}

// Unregister removes a worker by id. It is a no-op if the id is unknown.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return
	}
	r.removeFromIndexLocked(e.desc.Capability, id)
	delete(r.byID, id)
}

// ByCapability returns every worker registered under the given capability,
// in no particular order — selection ordering is the Supervisor's job.
func (r *Registry) ByCapability(capability string) []worker.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byCapability[capability]
	out := make([]worker.Worker, 0, len(ids))
	for id := range ids {
		out = append(out, r.byID[id].w)
	}
	return out
}

// ByCapabilities returns the union of workers across every capability named,
// deduplicated by id — used when a stage can be served by more than one
// capability (§4.1).
func (r *Registry) ByCapabilities(capabilities ...string) []worker.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []worker.Worker
	for _, cap := range capabilities {
		for id := range r.byCapability[cap] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, r.byID[id].w)
		}
	}
	return out
}

// Has reports whether at least one worker is registered for a capability —
// used by the Factory's fail-fast dependency check (§4.7, Supplemented
// Feature #4: missing_dependency must surface before a workflow starts).
func (r *Registry) Has(capability string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCapability[capability]) > 0
}

// MissingCapabilities filters the given list down to the ones with no
// registered worker.
func (r *Registry) MissingCapabilities(capabilities ...string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, cap := range capabilities {
		if len(r.byCapability[cap]) == 0 {
			missing = append(missing, cap)
		}
	}
	return missing
}

// Descriptors returns every registered worker's static descriptor, keyed by
// registration id — used for introspection/diagnostics.
func (r *Registry) Descriptors() map[string]model.WorkerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]model.WorkerDescriptor, len(r.byID))
	for id, e := range r.byID {
		out[id] = e.desc
	}
	return out
}

func (r *Registry) addToIndexLocked(capability, id string) {
	set, ok := r.byCapability[capability]
	if !ok {
		set = make(map[string]struct{})
		r.byCapability[capability] = set
	}
	set[id] = struct{}{}
}

func (r *Registry) removeFromIndexLocked(capability, id string) {
	if set, ok := r.byCapability[capability]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byCapability, capability)
		}
	}
}
