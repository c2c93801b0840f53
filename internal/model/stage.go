package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StageID identifies one step of the canonical pipeline (§4.5).
type StageID string

const (
	StageCreatePayment      StageID = "create_payment"
	StageValidatePayment    StageID = "validate_payment"
	StageOptimizeRoute      StageID = "optimize_route"
	StageValidateCompliance StageID = "validate_compliance"
	StageCheckLiquidity     StageID = "check_liquidity"
	StageLockExchangeRate   StageID = "lock_exchange_rate"
	StageExecuteMMO         StageID = "execute_mmo"
	StageSettlePayment      StageID = "settle_payment"
	StageConfirmPayment     StageID = "confirm_payment"
)

// StageResult is the outcome of one stage invocation (§3). A stage id
// absent from the WorkflowContext's result map has not been attempted;
// one present with OK=false has exhausted its retries for this run.
type StageResult struct {
	OK       bool
	StageID  StageID
	Message  string
	Payload  any
	ErrKind  ErrorKind
	Elapsed  time.Duration
	Attempts int
}

// Failed builds a non-OK StageResult carrying a typed error kind.
func Failed(stage StageID, kind ErrorKind, message string, elapsed time.Duration, attempts int) StageResult {
	return StageResult{StageID: stage, OK: false, ErrKind: kind, Message: message, Elapsed: elapsed, Attempts: attempts}
}

// Succeeded builds an OK StageResult carrying a stage-specific payload.
func Succeeded(stage StageID, payload any, message string, elapsed time.Duration, attempts int) StageResult {
	return StageResult{StageID: stage, OK: true, Payload: payload, Message: message, Elapsed: elapsed, Attempts: attempts}
}

// WorkflowContext is the per-run mutable state owned exclusively by the
// Orchestrator for the duration of one run (§3). It is never shared
// across goroutines outside the orchestrator's own synchronization.
type WorkflowContext struct {
	WorkflowID   string
	Intent       PaymentIntent
	Results      map[StageID]StageResult
	StartedAt    time.Time
	CurrentStage StageID
	Terminal     bool
}

// NewWorkflowContext creates an empty context ready for stage execution.
func NewWorkflowContext(workflowID string, intent PaymentIntent) *WorkflowContext {
	return &WorkflowContext{
		WorkflowID: workflowID,
		Intent:     intent,
		Results:    make(map[StageID]StageResult),
		StartedAt:  time.Now(),
	}
}

// Result fetches a prior stage's result and whether it was attempted.
func (c *WorkflowContext) Result(stage StageID) (StageResult, bool) {
	r, ok := c.Results[stage]
	return r, ok
}

// Record stores a stage result under its own id.
func (c *WorkflowContext) Record(result StageResult) {
	c.Results[result.StageID] = result
}

// AllOK reports whether every one of the given stages is present and OK —
// used by a Stage Executor to assert its prerequisites before running.
func (c *WorkflowContext) AllOK(stages ...StageID) bool {
	for _, s := range stages {
		r, ok := c.Results[s]
		if !ok || !r.OK {
			return false
		}
	}
	return true
}

// WorkflowStatus is the terminal classification of a workflow run.
type WorkflowStatus string

const (
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
	StatusCancelled WorkflowStatus = "cancelled"
)

// WorkflowResult is the egress shape described in §6.
type WorkflowResult struct {
	OK                 bool
	PaymentID          string
	WorkflowID         string
	Status             WorkflowStatus
	Message            string
	Elapsed            time.Duration
	StepResults        map[StageID]StageResult
	TransactionHash    string
	EstimatedDelivery  time.Duration
	FeesCharged        decimal.NullDecimal
	ExchangeRate       decimal.NullDecimal
	ErrorKind          ErrorKind
}
