// Package stage implements the Stage Executors (C5): one per canonical
// pipeline stage id, each declaring its prerequisite stages and the
// capability it consumes from the Supervisor.
package stage

import (
	"context"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/consensus"
	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/supervisor"
)

// Capability names consumed by stage executors (§4.5 table, §6 config).
const (
	CapPaymentService    = "payment_service"
	CapRouteOptimization = "route_optimization"
	CapCompliance        = "compliance"
	CapLiquidity         = "liquidity"
	CapExchangeRate      = "exchange_rate"
	CapMMOService        = "mmo_service"
	CapSettlement        = "settlement"
)

// Executor is one stage of the canonical pipeline (§4.5).
type Executor struct {
	ID         model.StageID
	Capability string
	Prereqs    []model.StageID
	Optional   bool
}

// Pipeline returns the nine canonical stages in declaration order, each
// with its prerequisite edges from the §4.5 table.
func Pipeline() []Executor {
	return []Executor{
		{ID: model.StageCreatePayment, Capability: CapPaymentService},
		{ID: model.StageValidatePayment, Capability: CapPaymentService, Prereqs: []model.StageID{model.StageCreatePayment}},
		{ID: model.StageOptimizeRoute, Capability: CapRouteOptimization, Prereqs: []model.StageID{model.StageValidatePayment}},
		{ID: model.StageValidateCompliance, Capability: CapCompliance, Prereqs: []model.StageID{model.StageOptimizeRoute}},
		{ID: model.StageCheckLiquidity, Capability: CapLiquidity, Prereqs: []model.StageID{model.StageValidateCompliance}},
		{ID: model.StageLockExchangeRate, Capability: CapExchangeRate, Prereqs: []model.StageID{model.StageCheckLiquidity}},
		{ID: model.StageExecuteMMO, Capability: CapMMOService, Prereqs: []model.StageID{model.StageLockExchangeRate}},
		{ID: model.StageSettlePayment, Capability: CapSettlement, Prereqs: []model.StageID{model.StageExecuteMMO}},
		{ID: model.StageConfirmPayment, Capability: CapPaymentService, Prereqs: []model.StageID{model.StageSettlePayment}},
	}
}

// Run asserts the executor's prerequisites, applies the stage's timeout
// budget, and invokes one worker of its capability through the Supervisor
// (§4.5 steps b-e). It is the non-consensus path; the Orchestrator calls
// RunConsensus instead when the preset enables consensus.
func (e Executor) Run(ctx context.Context, sup *supervisor.Supervisor, wfCtx *model.WorkflowContext, timeout time.Duration) model.StageResult {
	if !wfCtx.AllOK(e.Prereqs...) {
		return model.Failed(e.ID, model.ErrPrerequisiteFailed, "a required prior stage did not succeed", 0, 0)
	}

	start := time.Now()
	stageCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	wfCtx.CurrentStage = e.ID
	result := sup.Invoke(stageCtx, e.Capability, wfCtx)
	result.StageID = e.ID
	if result.Elapsed == 0 {
		result.Elapsed = time.Since(start)
	}

	if !result.OK && stageCtx.Err() == context.DeadlineExceeded {
		result = model.Failed(e.ID, model.ErrStageTimeout, "stage budget exceeded", time.Since(start), result.Attempts)
	}

	return result
}

// RunConsensus is the consensus path: it asserts prerequisites and the
// timeout budget exactly like Run, but invokes up to n workers of the
// executor's capability in parallel and arbitrates their results instead of
// accepting the first one (§4.6, §4.8).
func (e Executor) RunConsensus(ctx context.Context, sup *supervisor.Supervisor, cfg config.Consensus, wfCtx *model.WorkflowContext, timeout time.Duration, n int) model.StageResult {
	if !wfCtx.AllOK(e.Prereqs...) {
		return model.Failed(e.ID, model.ErrPrerequisiteFailed, "a required prior stage did not succeed", 0, 0)
	}

	start := time.Now()
	stageCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	wfCtx.CurrentStage = e.ID
	results := sup.InvokeAll(stageCtx, e.Capability, wfCtx, n)
	verdict := consensus.Arbitrate(cfg, results)
	result := verdict.Selected
	result.StageID = e.ID
	if result.Elapsed == 0 {
		result.Elapsed = time.Since(start)
	}

	if !result.OK && stageCtx.Err() == context.DeadlineExceeded {
		result = model.Failed(e.ID, model.ErrStageTimeout, "stage budget exceeded", time.Since(start), result.Attempts)
	}

	return result
}
