package registry

import (
	"context"
	"testing"

	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	capability string
}

func (f fakeWorker) Capability() string { return f.capability }

func (f fakeWorker) Process(ctx context.Context, wfCtx *model.WorkflowContext) model.StageResult {
	return model.Succeeded(model.StageOptimizeRoute, nil, "ok", 0, 1)
}

type describedWorker struct {
	fakeWorker
	required []string
}

func (f describedWorker) Describe() model.WorkerDescriptor {
	return model.WorkerDescriptor{Capability: f.capability, RequiredCapability: f.required}
}

func TestRegistry_RegisterAndByCapability(t *testing.T) {
	r := New()
	r.Register("opt-1", fakeWorker{capability: "optimize_route"})
	r.Register("opt-2", fakeWorker{capability: "optimize_route"})
	r.Register("comp-1", fakeWorker{capability: "validate_compliance"})

	opts := r.ByCapability("optimize_route")
	require.Len(t, opts, 2)

	comps := r.ByCapability("validate_compliance")
	require.Len(t, comps, 1)

	assert.Empty(t, r.ByCapability("execute_mmo"))
}

func TestRegistry_RegisterIsIdempotentByID(t *testing.T) {
	r := New()
	r.Register("w-1", fakeWorker{capability: "optimize_route"})
	r.Register("w-1", fakeWorker{capability: "validate_compliance"})

	assert.Empty(t, r.ByCapability("optimize_route"))
	assert.Len(t, r.ByCapability("validate_compliance"), 1)
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()
	r.Register("w-1", fakeWorker{capability: "optimize_route"})
	r.Unregister("w-1")
	assert.Empty(t, r.ByCapability("optimize_route"))
	assert.False(t, r.Has("optimize_route"))
}

func TestRegistry_ByCapabilities_DedupesByID(t *testing.T) {
	r := New()
	r.Register("w-1", fakeWorker{capability: "optimize_route"})
	r.Register("w-2", fakeWorker{capability: "validate_compliance"})

	out := r.ByCapabilities("optimize_route", "validate_compliance", "optimize_route")
	assert.Len(t, out, 2)
}

func TestRegistry_MissingCapabilities(t *testing.T) {
	r := New()
	r.Register("w-1", fakeWorker{capability: "optimize_route"})

	missing := r.MissingCapabilities("optimize_route", "execute_mmo", "settle_payment")
	assert.ElementsMatch(t, []string{"execute_mmo", "settle_payment"}, missing)
}

func TestRegistry_Has(t *testing.T) {
	r := New()
	assert.False(t, r.Has("optimize_route"))
	r.Register("w-1", fakeWorker{capability: "optimize_route"})
	assert.True(t, r.Has("optimize_route"))
}

func TestRegistry_Register_RefusesWhenRequiredCapabilityMissing(t *testing.T) {
	r := New()
	w := describedWorker{fakeWorker: fakeWorker{capability: "execute_mmo"}, required: []string{"route_optimization"}}

	err := r.Register("mmo-1", w)
	require.Error(t, err)
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{"route_optimization"}, depErr.Missing)
	assert.False(t, r.Has("execute_mmo"))
}

func TestRegistry_Register_SucceedsOnceRequiredCapabilityIsRegistered(t *testing.T) {
	r := New()
	w := describedWorker{fakeWorker: fakeWorker{capability: "execute_mmo"}, required: []string{"route_optimization"}}

	require.Error(t, r.Register("mmo-1", w))

	r.Register("opt-1", fakeWorker{capability: "route_optimization"})
	require.NoError(t, r.Register("mmo-1", w))
	assert.True(t, r.Has("execute_mmo"))
}
