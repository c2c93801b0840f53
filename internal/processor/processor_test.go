package processor

import (
	"context"
	"testing"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wfCtxAt(s model.StageID) *model.WorkflowContext {
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "ref-1"})
	wfCtx.CurrentStage = s
	return wfCtx
}

func TestPaymentService_Capability(t *testing.T) {
	p := NewPaymentService()
	assert.Equal(t, stage.CapPaymentService, p.Capability())
}

func TestPaymentService_CreatePayment_BuildsRecord(t *testing.T) {
	p := NewPaymentService()
	wfCtx := wfCtxAt(model.StageCreatePayment)
	wfCtx.Intent = model.PaymentIntent{ReferenceID: "ref-1", SourceCurrency: "USD", DestCurrency: "KES"}

	result := p.Process(context.Background(), wfCtx)
	require.True(t, result.OK)
	record, ok := result.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ref-1", record["reference_id"])
}

func TestPaymentService_ConfirmPayment_ReadsSettlementPayload(t *testing.T) {
	p := NewPaymentService()
	wfCtx := wfCtxAt(model.StageConfirmPayment)
	wfCtx.Record(model.Succeeded(model.StageSettlePayment, map[string]any{"transaction_hash": "0xabc"}, "settled", time.Millisecond, 1))

	result := p.Process(context.Background(), wfCtx)
	require.True(t, result.OK)
	record := result.Payload.(map[string]any)
	assert.Equal(t, "0xabc", record["transaction_hash"])
}

func TestLiquidityChecker_Capability(t *testing.T) {
	l := NewLiquidityChecker()
	assert.Equal(t, stage.CapLiquidity, l.Capability())
}

func TestExchangeRateLocker_ProducesRateAndExpiry(t *testing.T) {
	e := NewExchangeRateLocker()
	wfCtx := wfCtxAt(model.StageLockExchangeRate)

	result := e.Process(context.Background(), wfCtx)
	require.True(t, result.OK)
	record := result.Payload.(map[string]any)
	assert.Contains(t, record, "rate")
	assert.Contains(t, record, "expires_at")
}

func TestRailWorker_DegradedMode_MostlyTransientFailures(t *testing.T) {
	w := NewRailWorker(RailConfig{
		Capability: "test_capability",
		Outcomes:   OutcomeDistribution{SuccessRate: 1.0},
	})
	w.SetDegraded(true)

	failures := 0
	total := 200
	for i := 0; i < total; i++ {
		result := w.Process(context.Background(), wfCtxAt("test_stage"))
		if !result.OK {
			failures++
		}
	}
	rate := float64(failures) / float64(total)
	assert.InDelta(t, 0.8, rate, 0.15)
}

func TestRailWorker_ContextCancellation_DuringLatency(t *testing.T) {
	w := NewRailWorker(RailConfig{
		Capability: "slow_capability",
		Outcomes:   OutcomeDistribution{SuccessRate: 1.0},
		MinLatency: 5 * time.Second,
		MaxLatency: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := w.Process(ctx, wfCtxAt("slow_stage"))
	assert.False(t, result.OK)
	assert.Equal(t, model.ErrStageTimeout, result.ErrKind)
}

func TestRailWorker_ConcurrentAccess(t *testing.T) {
	w := NewPaymentService()
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			result := w.Process(context.Background(), wfCtxAt(model.StageValidatePayment))
			require.True(t, result.Attempts > 0)
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
}
