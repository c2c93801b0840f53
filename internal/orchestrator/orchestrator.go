// Package orchestrator implements the Workflow Orchestrator (C6): it drives
// one payment intent through a preset's stage graph, batching independent
// stages, applying per-stage and global timeouts, and — when the preset
// enables it — arbitrating consensus across redundant workers per stage.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/observability"
	"github.com/nimbus-payments/orchestration-core/internal/stage"
	"github.com/nimbus-payments/orchestration-core/internal/supervisor"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Orchestrator drives one preset's stage graph to completion for as many
// concurrent workflows as its MaxConcurrentWorkflows slot allows.
type Orchestrator struct {
	cfg      config.Core
	sup      *supervisor.Supervisor
	pipeline []stage.Executor

	breaker *gobreaker.CircuitBreaker[model.WorkflowResult]
	slots   *semaphore.Weighted
	sink    observability.Sink

	mu    sync.RWMutex
	store map[string]model.WorkflowResult
}

// New builds an Orchestrator bound to the given supervisor and stage graph
// (normally stage.Pipeline(), possibly trimmed/annotated by the Factory).
func New(cfg config.Core, sup *supervisor.Supervisor, pipeline []stage.Executor) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		sup:      sup,
		pipeline: pipeline,
		slots:    semaphore.NewWeighted(int64(maxInt(cfg.Orchestrator.MaxConcurrentWorkflows, 1))),
		sink:     observability.NoOp{},
		store:    make(map[string]model.WorkflowResult),
	}

	if cfg.Orchestrator.EnableCircuitBreaker {
		o.breaker = gobreaker.NewCircuitBreaker[model.WorkflowResult](gobreaker.Settings{
			Name:        "orchestrator",
			MaxRequests: 1,
			Timeout:     cfg.Orchestrator.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(cfg.Orchestrator.BreakerThreshold)
			},
		})
	}

	return o
}

// SetSink wires an Observability Sink to receive every stage and workflow
// outcome this Orchestrator produces from here on. Safe to call once before
// the Orchestrator starts serving Run calls; not safe to swap concurrently
// with an in-flight run.
func (o *Orchestrator) SetSink(sink observability.Sink) {
	if sink == nil {
		sink = observability.NoOp{}
	}
	o.sink = sink
}

// Run executes the stage graph for one intent to completion, cancellation,
// or timeout and returns the egress WorkflowResult (§6).
func (o *Orchestrator) Run(ctx context.Context, workflowID string, intent model.PaymentIntent) model.WorkflowResult {
	if err := intent.Validate(); err != nil {
		return model.WorkflowResult{WorkflowID: workflowID, PaymentID: intent.ReferenceID, Status: model.StatusFailed, ErrorKind: model.KindOf(err), Message: err.Error()}
	}

	if err := o.slots.Acquire(ctx, 1); err != nil {
		return model.WorkflowResult{WorkflowID: workflowID, PaymentID: intent.ReferenceID, Status: model.StatusCancelled, ErrorKind: model.ErrCancelled, Message: "no orchestrator slot became available before context cancellation"}
	}
	defer o.slots.Release(1)

	if o.breaker == nil {
		result := o.run(ctx, workflowID, intent)
		o.save(result)
		o.sink.RecordWorkflow(result)
		return result
	}

	result, err := o.breaker.Execute(func() (model.WorkflowResult, error) {
		r := o.run(ctx, workflowID, intent)
		if !r.OK {
			return r, model.NewError(r.ErrorKind, "", r.Message, nil)
		}
		return r, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			result = model.WorkflowResult{WorkflowID: workflowID, PaymentID: intent.ReferenceID, Status: model.StatusFailed, ErrorKind: model.ErrCircuitOpen, Message: "orchestrator circuit is open"}
		}
	}
	o.save(result)
	o.sink.RecordWorkflow(result)
	return result
}

func (o *Orchestrator) run(ctx context.Context, workflowID string, intent model.PaymentIntent) model.WorkflowResult {
	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.Orchestrator.GlobalTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.Orchestrator.GlobalTimeout)
		defer cancel()
	}

	wfCtx := model.NewWorkflowContext(workflowID, intent)

	batches := batch(o.pipeline)
	var terminalFailure *model.StageResult

batchLoop:
	for _, b := range batches {
		if runCtx.Err() != nil {
			break batchLoop
		}

		results := make([]model.StageResult, len(b))
		var g errgroup.Group
		g.SetLimit(maxInt(o.cfg.Orchestrator.MaxParallelSteps, 1))
		for i, e := range b {
			i, e := i, e
			g.Go(func() error {
				results[i] = o.runStage(runCtx, e, wfCtx)
				return nil
			})
		}
		g.Wait()

		for i, e := range b {
			r := results[i]
			wfCtx.Record(r)
			slog.Debug("stage_completed", "workflow_id", workflowID, "stage", e.ID, "ok", r.OK, "attempts", r.Attempts, "elapsed", r.Elapsed)
			o.sink.RecordStage(e.ID, e.Capability, r)
			if !r.OK && !e.Optional && terminalFailure == nil {
				rCopy := r
				terminalFailure = &rCopy
			}
		}
		if terminalFailure != nil {
			break batchLoop
		}
	}

	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return model.WorkflowResult{
			OK: false, WorkflowID: workflowID, PaymentID: intent.ReferenceID,
			Status: model.StatusFailed, ErrorKind: model.ErrWorkflowTimeout,
			Message: "workflow exceeded its global timeout budget", Elapsed: elapsed,
			StepResults: wfCtx.Results,
		}
	}
	if ctx.Err() == context.Canceled {
		return model.WorkflowResult{
			OK: false, WorkflowID: workflowID, PaymentID: intent.ReferenceID,
			Status: model.StatusCancelled, ErrorKind: model.ErrCancelled,
			Message: "workflow run was cancelled", Elapsed: elapsed,
			StepResults: wfCtx.Results,
		}
	}
	if terminalFailure != nil {
		return model.WorkflowResult{
			OK: false, WorkflowID: workflowID, PaymentID: intent.ReferenceID,
			Status: model.StatusFailed, ErrorKind: terminalFailure.ErrKind,
			Message: terminalFailure.Message, Elapsed: elapsed,
			StepResults: wfCtx.Results,
		}
	}

	return model.WorkflowResult{
		OK: true, WorkflowID: workflowID, PaymentID: intent.ReferenceID,
		Status: model.StatusCompleted, Message: "workflow completed",
		Elapsed: elapsed, StepResults: wfCtx.Results,
		TransactionHash: transactionHash(wfCtx),
	}
}

// runStage dispatches to the consensus or single-worker path depending on
// whether the preset enables consensus mode (§4.6).
func (o *Orchestrator) runStage(ctx context.Context, e stage.Executor, wfCtx *model.WorkflowContext) model.StageResult {
	timeout := o.cfg.StageTimeouts[string(e.ID)]

	if !o.cfg.Orchestrator.EnableConsensus {
		return e.Run(ctx, o.sup, wfCtx, timeout)
	}

	n := o.cfg.Consensus.MaxAgents
	if n <= 0 {
		n = maxInt(o.cfg.Consensus.MinAgents, 2)
	}
	return e.RunConsensus(ctx, o.sup, o.cfg.Consensus, wfCtx, timeout, n)
}

// counterSink is implemented by Sinks that keep a queryable aggregate view
// (PrometheusSink does); Metrics degrades to an empty map against NoOp or a
// tracing-only Sink.
type counterSink interface {
	Counters() map[string]observability.StageCounters
}

// Metrics returns the per-capability call-count/duration aggregate the
// wired Sink has observed so far (§5 supplemented features item 3).
func (o *Orchestrator) Metrics() map[string]observability.StageCounters {
	if c, ok := o.sink.(counterSink); ok {
		return c.Counters()
	}
	return map[string]observability.StageCounters{}
}

// Workflow returns a previously run workflow's result by id.
func (o *Orchestrator) Workflow(workflowID string) (model.WorkflowResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.store[workflowID]
	return r, ok
}

func (o *Orchestrator) save(result model.WorkflowResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.store[result.WorkflowID] = result
}

// batch groups executors into waves by declared-prerequisite satisfaction
// (§4.6): a wave contains every not-yet-run executor whose prereqs are all
// in a prior wave. Executors outside the given slice are never referenced
// as prereqs by a well-formed preset, so this always terminates.
func batch(executors []stage.Executor) [][]stage.Executor {
	done := make(map[model.StageID]bool, len(executors))
	remaining := append([]stage.Executor(nil), executors...)
	var batches [][]stage.Executor

	for len(remaining) > 0 {
		var wave []stage.Executor
		var next []stage.Executor
		for _, e := range remaining {
			ready := true
			for _, p := range e.Prereqs {
				if !done[p] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, e)
			} else {
				next = append(next, e)
			}
		}
		if len(wave) == 0 {
			// a malformed graph (prereq never in the set) — run the rest as
			// a final best-effort wave rather than spin forever.
			batches = append(batches, remaining)
			break
		}
		for _, e := range wave {
			done[e.ID] = true
		}
		batches = append(batches, wave)
		remaining = next
	}
	return batches
}

// transactionHash pulls settle_payment's transaction hash through into the
// egress result, when present (§6).
func transactionHash(wfCtx *model.WorkflowContext) string {
	r, ok := wfCtx.Result(model.StageSettlePayment)
	if !ok || !r.OK {
		return ""
	}
	m, ok := r.Payload.(map[string]any)
	if !ok {
		return ""
	}
	h, _ := m["transaction_hash"].(string)
	return h
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
