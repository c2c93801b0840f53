package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedWorker struct {
	capability string
	results    []model.StageResult
	calls      int
}

func (w *scriptedWorker) Capability() string { return w.capability }

func (w *scriptedWorker) Process(ctx context.Context, wfCtx *model.WorkflowContext) model.StageResult {
	r := w.results[w.calls]
	w.calls++
	return r
}

func TestSupervisor_Invoke_SucceedsOnFirstWorker(t *testing.T) {
	reg := registry.New()
	w := &scriptedWorker{capability: "optimize_route", results: []model.StageResult{
		model.Succeeded(model.StageOptimizeRoute, "route-a", "ok", time.Millisecond, 1),
	}}
	reg.Register("opt-1", w)

	s := New(reg, config.DefaultSupervisor())
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "r1"})

	result := s.Invoke(context.Background(), "optimize_route", wfCtx)
	assert.True(t, result.OK)
	assert.Equal(t, 1, w.calls)
}

func TestSupervisor_Invoke_RetriesOnTransientFailure(t *testing.T) {
	reg := registry.New()
	w := &scriptedWorker{capability: "execute_mmo", results: []model.StageResult{
		model.Failed(model.StageExecuteMMO, model.ErrAdapterTransient, "timeout", time.Millisecond, 1),
		model.Succeeded(model.StageExecuteMMO, "tx-1", "ok", time.Millisecond, 2),
	}}
	reg.Register("mmo-1", w)

	cfg := config.DefaultSupervisor()
	cfg.RetryDelay = 0
	s := New(reg, cfg)
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "r1"})

	result := s.Invoke(context.Background(), "execute_mmo", wfCtx)
	assert.True(t, result.OK)
	assert.Equal(t, 2, w.calls)
}

func TestSupervisor_Invoke_DoesNotRetryNonRetriableFailure(t *testing.T) {
	reg := registry.New()
	w := &scriptedWorker{capability: "validate_compliance", results: []model.StageResult{
		model.Failed(model.StageValidateCompliance, model.ErrComplianceRejected, "sanctions hit", time.Millisecond, 1),
	}}
	reg.Register("comp-1", w)

	s := New(reg, config.DefaultSupervisor())
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "r1"})

	result := s.Invoke(context.Background(), "validate_compliance", wfCtx)
	assert.False(t, result.OK)
	assert.Equal(t, model.ErrComplianceRejected, result.ErrKind)
	assert.Equal(t, 1, w.calls)
}

func TestSupervisor_Invoke_NoWorkerRegistered(t *testing.T) {
	reg := registry.New()
	s := New(reg, config.DefaultSupervisor())
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "r1"})

	result := s.Invoke(context.Background(), "settle_payment", wfCtx)
	require.False(t, result.OK)
	assert.Equal(t, model.ErrMissingDependency, result.ErrKind)
}

func TestSupervisor_Invoke_ExhaustsRetriesOnPersistentTransientFailure(t *testing.T) {
	reg := registry.New()
	w := &scriptedWorker{capability: "optimize_route", results: []model.StageResult{
		model.Failed(model.StageOptimizeRoute, model.ErrAdapterTransient, "down", time.Millisecond, 1),
		model.Failed(model.StageOptimizeRoute, model.ErrAdapterTransient, "down", time.Millisecond, 1),
	}}
	reg.Register("opt-1", w)

	cfg := config.DefaultSupervisor()
	cfg.RetryAttempts = 1
	cfg.RetryDelay = 0
	s := New(reg, cfg)
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "r1"})

	result := s.Invoke(context.Background(), "optimize_route", wfCtx)
	assert.False(t, result.OK)
	assert.Equal(t, model.ErrAdapterTransient, result.ErrKind)
	assert.Equal(t, 2, w.calls)
}

type describedWorker struct {
	scriptedWorker
	version string
}

func (w *describedWorker) Describe() model.WorkerDescriptor {
	return model.WorkerDescriptor{Capability: w.capability, Version: w.version}
}

func TestSupervisor_CandidatesFor_WeightedRanksBySuccessOverProcessingTime(t *testing.T) {
	reg := registry.New()
	fast := &describedWorker{scriptedWorker: scriptedWorker{capability: "optimize_route"}, version: "fast"}
	slow := &describedWorker{scriptedWorker: scriptedWorker{capability: "optimize_route"}, version: "slow"}
	reg.Register("opt-fast", fast)
	reg.Register("opt-slow", slow)

	cfg := config.DefaultSupervisor()
	cfg.SelectionPolicy = config.SelectWeighted
	s := New(reg, cfg)

	// "slow" has the higher raw success rate but is an order of magnitude
	// slower, so weighted selection (success_rate / avg_processing_time)
	// must still prefer "fast".
	s.Track("optimize_route:fast", fast)
	s.Track("optimize_route:slow", slow)
	s.entries["optimize_route:fast"].state.SuccessRateEMA = 0.8
	s.entries["optimize_route:fast"].state.AvgProcessingEMA = 10 * time.Millisecond
	s.entries["optimize_route:slow"].state.SuccessRateEMA = 0.95
	s.entries["optimize_route:slow"].state.AvgProcessingEMA = 500 * time.Millisecond

	candidates := s.candidatesFor("optimize_route")
	require.Len(t, candidates, 2)
	assert.Equal(t, "optimize_route:fast", candidates[0].id)
	assert.Equal(t, "optimize_route:slow", candidates[1].id)
}

func TestSupervisor_CandidatesFor_PerformanceBasedRanksBySuccessOverProcessingTime(t *testing.T) {
	reg := registry.New()
	fast := &describedWorker{scriptedWorker: scriptedWorker{capability: "optimize_route"}, version: "fast"}
	slow := &describedWorker{scriptedWorker: scriptedWorker{capability: "optimize_route"}, version: "slow"}
	reg.Register("opt-fast", fast)
	reg.Register("opt-slow", slow)

	cfg := config.DefaultSupervisor()
	cfg.SelectionPolicy = config.SelectPerformanceBased
	cfg.PerformanceTopK = 0
	s := New(reg, cfg)

	s.Track("optimize_route:fast", fast)
	s.Track("optimize_route:slow", slow)
	s.entries["optimize_route:fast"].state.SuccessRateEMA = 0.8
	s.entries["optimize_route:fast"].state.AvgProcessingEMA = 10 * time.Millisecond
	s.entries["optimize_route:slow"].state.SuccessRateEMA = 0.95
	s.entries["optimize_route:slow"].state.AvgProcessingEMA = 500 * time.Millisecond

	candidates := s.candidatesFor("optimize_route")
	require.Len(t, candidates, 2)
	assert.Equal(t, "optimize_route:fast", candidates[0].id)
}

func TestSupervisor_State_TracksSuccessEMA(t *testing.T) {
	reg := registry.New()
	w := &scriptedWorker{capability: "optimize_route", results: []model.StageResult{
		model.Succeeded(model.StageOptimizeRoute, "route-a", "ok", time.Millisecond, 1),
	}}
	reg.Register("opt-1", w)

	s := New(reg, config.DefaultSupervisor())
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "r1"})
	s.Invoke(context.Background(), "optimize_route", wfCtx)

	state, ok := s.State("optimize_route:default")
	require.True(t, ok)
	assert.Equal(t, model.BreakerClosed, state.Breaker)
	assert.Greater(t, state.SuccessRateEMA, 0.9)
}
