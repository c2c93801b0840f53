package adapter

import (
	"context"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/stage"
	"github.com/nimbus-payments/orchestration-core/internal/worker"
)

var (
	_ worker.Worker     = (*MMOWorker)(nil)
	_ worker.Descriptor = (*MMOWorker)(nil)
	_ worker.Worker     = (*SettlementWorker)(nil)
	_ worker.Descriptor = (*SettlementWorker)(nil)
)

// MMOWorker adapts an MMO rail into a Worker for the mmo_service
// capability (§4.5, §4.9): it reads the optimizer's selected route from
// prior stage results to build the disbursement request, keyed for
// idempotency by the workflow's reference id. It declares
// route_optimization as a required capability (§4.1) since it has nothing
// to build a disbursement request from without a prior route selection.
type MMOWorker struct {
	rail MMO
}

// NewMMOWorker wraps an MMO rail as the execute_mmo stage worker.
func NewMMOWorker(rail MMO) *MMOWorker {
	return &MMOWorker{rail: rail}
}

func (w *MMOWorker) Capability() string { return stage.CapMMOService }

// Describe implements worker.Descriptor.
func (w *MMOWorker) Describe() model.WorkerDescriptor {
	return model.WorkerDescriptor{
		Capability:         stage.CapMMOService,
		RequiredCapability: []string{stage.CapRouteOptimization},
	}
}

// Process implements worker.Worker.
func (w *MMOWorker) Process(ctx context.Context, wfCtx *model.WorkflowContext) model.StageResult {
	start := time.Now()
	intent := wfCtx.Intent

	provider := ""
	if route, ok := selectedRoute(wfCtx); ok && len(route.Providers) > 0 {
		provider = route.Providers[0]
	}

	req := MMORequest{
		IdempotencyKey: intent.ReferenceID,
		RecipientPhone: intent.Recipient.Phone,
		RecipientName:  intent.Recipient.Name,
		Amount:         intent.Amount,
		Currency:       intent.DestCurrency,
		Provider:       provider,
	}

	resp, err := w.rail.Disburse(ctx, req)
	if err != nil {
		return model.Failed(model.StageExecuteMMO, model.ErrAdapterTransient, err.Error(), time.Since(start), 1)
	}
	if !resp.Accepted {
		kind := model.ErrAdapterPermanent
		if resp.Retriable {
			kind = model.ErrAdapterTransient
		}
		return model.Failed(model.StageExecuteMMO, kind, resp.Message, time.Since(start), 1)
	}

	return model.Succeeded(model.StageExecuteMMO, map[string]any{"external_ref": resp.ExternalRef}, resp.Message, time.Since(start), 1)
}

// SettlementWorker adapts a Settlement rail into a Worker for the
// settlement capability. It declares route_optimization as a required
// capability for the same reason MMOWorker does.
type SettlementWorker struct {
	rail Settlement
}

// NewSettlementWorker wraps a Settlement rail as the settle_payment stage worker.
func NewSettlementWorker(rail Settlement) *SettlementWorker {
	return &SettlementWorker{rail: rail}
}

func (w *SettlementWorker) Capability() string { return stage.CapSettlement }

// Describe implements worker.Descriptor.
func (w *SettlementWorker) Describe() model.WorkerDescriptor {
	return model.WorkerDescriptor{
		Capability:         stage.CapSettlement,
		RequiredCapability: []string{stage.CapRouteOptimization},
	}
}

// Process implements worker.Worker.
func (w *SettlementWorker) Process(ctx context.Context, wfCtx *model.WorkflowContext) model.StageResult {
	start := time.Now()
	intent := wfCtx.Intent

	routeID := ""
	if route, ok := selectedRoute(wfCtx); ok {
		routeID = route.ID
	}

	req := SettlementRequest{
		IdempotencyKey: intent.ReferenceID,
		Amount:         intent.Amount,
		Currency:       intent.DestCurrency,
		RouteID:        routeID,
	}

	resp, err := w.rail.Settle(ctx, req)
	if err != nil {
		return model.Failed(model.StageSettlePayment, model.ErrAdapterTransient, err.Error(), time.Since(start), 1)
	}
	if !resp.Confirmed {
		kind := model.ErrAdapterPermanent
		if resp.Retriable {
			kind = model.ErrAdapterTransient
		}
		return model.Failed(model.StageSettlePayment, kind, resp.Message, time.Since(start), 1)
	}

	return model.Succeeded(model.StageSettlePayment, map[string]any{"transaction_hash": resp.TransactionHash}, resp.Message, time.Since(start), 1)
}

// selectedRoute extracts the optimize_route stage's selected candidate from
// its recorded payload, when present.
func selectedRoute(wfCtx *model.WorkflowContext) (model.CandidateRoute, bool) {
	r, ok := wfCtx.Result(model.StageOptimizeRoute)
	if !ok || !r.OK {
		return model.CandidateRoute{}, false
	}
	opt, ok := r.Payload.(model.OptimizationResult)
	if !ok || opt.Selected == nil {
		return model.CandidateRoute{}, false
	}
	return *opt.Selected, true
}
