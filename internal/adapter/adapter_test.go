package adapter

import (
	"context"
	"testing"

	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryMMO_IdempotentOnRepeatKey(t *testing.T) {
	m := NewInMemoryMMO(nil)
	req := MMORequest{IdempotencyKey: "key-1", RecipientPhone: "+254700000000", Amount: decimal.NewFromInt(100), Currency: "KES"}

	first, err := m.Disburse(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Accepted)

	second, err := m.Disburse(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ExternalRef, second.ExternalRef)
}

func TestInMemoryMMO_ForcedFailure(t *testing.T) {
	m := NewInMemoryMMO(func(req MMORequest) (MMOResponse, bool) {
		return MMOResponse{Accepted: false, Message: "insufficient funds", Retriable: false}, true
	})
	resp, err := m.Disburse(context.Background(), MMORequest{IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.False(t, resp.Retriable)
}

func TestInMemorySettlement_IdempotentOnRepeatKey(t *testing.T) {
	s := NewInMemorySettlement(nil)
	req := SettlementRequest{IdempotencyKey: "key-1", Amount: decimal.NewFromInt(100), Currency: "USD", RouteID: "route-a"}

	first, err := s.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Confirmed)

	second, err := s.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionHash, second.TransactionHash)
}

func TestInMemoryMMO_SatisfiesFullContract(t *testing.T) {
	var m MMO = NewInMemoryMMO(nil)
	ctx := context.Background()

	status, err := m.Status(ctx, "mmo-ref-1")
	require.NoError(t, err)
	assert.Equal(t, MMOStatusCompleted, status.Status)

	balance, err := m.Balance(ctx, "KES")
	require.NoError(t, err)
	assert.True(t, balance.Available.IsPositive())

	countries, err := m.SupportedCountries(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, countries)

	limits, err := m.Limits(ctx, "KES")
	require.NoError(t, err)
	assert.True(t, limits.MaxPerTransaction.IsPositive())
}

func TestInMemorySettlement_SatisfiesFullContract(t *testing.T) {
	var s Settlement = NewInMemorySettlement(nil)
	ctx := context.Background()

	reqs := []SettlementRequest{
		{IdempotencyKey: "batch-1", Amount: decimal.NewFromInt(10), Currency: "USD"},
		{IdempotencyKey: "batch-2", Amount: decimal.NewFromInt(20), Currency: "USD"},
	}
	resps, err := s.BatchSettle(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, resps, 2)
	assert.True(t, resps[0].Confirmed)
	assert.True(t, resps[1].Confirmed)

	status, err := s.Status(ctx, resps[0].TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, SettlementStatusConfirmed, status.Status)

	balance, err := s.Balance(ctx, "USD")
	require.NoError(t, err)
	assert.True(t, balance.Available.IsPositive())
}

func intentWithRoute(wfCtx *model.WorkflowContext, route model.CandidateRoute) {
	wfCtx.Record(model.Succeeded(model.StageOptimizeRoute, model.OptimizationResult{Selected: &route}, "route selected", 0, 1))
}

func TestMMOWorker_Process_DisbursesUsingSelectedRouteProvider(t *testing.T) {
	w := NewMMOWorker(NewInMemoryMMO(nil))
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "ref-1", DestCurrency: "KES"})
	intentWithRoute(wfCtx, model.CandidateRoute{ID: "route-a", Providers: []string{"provider-x"}})

	result := w.Process(context.Background(), wfCtx)
	require.True(t, result.OK)
	assert.Equal(t, model.StageExecuteMMO, result.StageID)
}

func TestMMOWorker_Process_SurfacesForcedFailureAsAdapterPermanent(t *testing.T) {
	rail := NewInMemoryMMO(func(req MMORequest) (MMOResponse, bool) {
		return MMOResponse{Accepted: false, Message: "account closed", Retriable: false}, true
	})
	w := NewMMOWorker(rail)
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "ref-1", DestCurrency: "KES"})

	result := w.Process(context.Background(), wfCtx)
	require.False(t, result.OK)
	assert.Equal(t, model.ErrAdapterPermanent, result.ErrKind)
}

func TestSettlementWorker_Process_SettlesUsingSelectedRouteID(t *testing.T) {
	w := NewSettlementWorker(NewInMemorySettlement(nil))
	wfCtx := model.NewWorkflowContext("wf-1", model.PaymentIntent{ReferenceID: "ref-1", DestCurrency: "USD"})
	intentWithRoute(wfCtx, model.CandidateRoute{ID: "route-a"})

	result := w.Process(context.Background(), wfCtx)
	require.True(t, result.OK)
	payload := result.Payload.(map[string]any)
	assert.Equal(t, "0xref-1", payload["transaction_hash"])
}
