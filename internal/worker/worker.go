// Package worker defines the contract every capability implementation
// (route optimizer, compliance checker, mobile-money adapter, ...) must
// satisfy to be registered and supervised by the orchestration core.
package worker

import (
	"context"

	"github.com/nimbus-payments/orchestration-core/internal/model"
)

// Worker is the capability contract (§4.1, §4.2). A worker is stateless
// across calls except for whatever internal learning it keeps for itself —
// the Supervisor owns all retry, circuit-breaking and selection state on
// its behalf.
type Worker interface {
	// Capability is the registry key this worker serves, e.g. "route_optimization"
	// or "mmo_service". Multiple workers may share a capability.
	Capability() string

	// Process runs one stage invocation and returns a StageResult. It must
	// never panic on a handled failure — return a Failed StageResult with
	// the appropriate model.ErrorKind instead, so the Supervisor's retry
	// envelope can decide whether to retry, fail over, or surface the error.
	Process(ctx context.Context, wfCtx *model.WorkflowContext) model.StageResult
}

// Descriptor is implemented by workers that want to advertise metadata to
// the registry beyond their bare capability string (version, dependencies).
// It is optional — a worker that only implements Worker is registered with
// a zero-value model.WorkerDescriptor besides Capability.
type Descriptor interface {
	Worker
	Describe() model.WorkerDescriptor
}
