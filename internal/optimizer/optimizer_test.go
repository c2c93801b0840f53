package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intent(amount int64) model.PaymentIntent {
	return model.PaymentIntent{
		ReferenceID:    "ref-1",
		Amount:         decimal.NewFromInt(amount),
		SourceCurrency: "USD",
		DestCurrency:   "KES",
		Sender:         model.PartyDescriptor{Country: "NG"},
		Recipient:      model.PartyDescriptor{Country: "KE"},
	}
}

func TestOptimizer_SelectsHubRouteUnderBalancedPolicy(t *testing.T) {
	// With the default balanced weights the stub hub route (cheaper fee)
	// totals ~0.9115 against the direct route's ~0.90475.
	o := New(config.DefaultOptimizer(), nil)
	result, err := o.Optimize(context.Background(), intent(100))
	require.NoError(t, err)
	require.NotNil(t, result.Selected)
	assert.Equal(t, model.RouteHub, result.Selected.Kind)
	assert.Equal(t, 1, result.SelectedScore.Rank)
}

func TestOptimizer_NoViableRoute_WhenAllDisabled(t *testing.T) {
	cfg := config.DefaultOptimizer()
	cfg.EnabledRouteKinds = map[string]bool{"direct": false, "hub": false, "multi_hop": false}
	o := New(cfg, nil)

	_, err := o.Optimize(context.Background(), intent(50))
	assert.Error(t, err)
}

func TestOptimizer_FiltersByMinSuccessRate(t *testing.T) {
	cfg := config.DefaultOptimizer()
	cfg.MinSuccessRate = 0.99 // above both stub routes' success rates
	o := New(cfg, nil)

	_, err := o.Optimize(context.Background(), intent(100))
	assert.Error(t, err)
}

func TestOptimizer_Deterministic_SameInputSameSelection(t *testing.T) {
	cfg := config.DefaultOptimizer()
	o1 := New(cfg, nil)
	o2 := New(cfg, nil)

	r1, err := o1.Optimize(context.Background(), intent(100))
	require.NoError(t, err)
	r2, err := o2.Optimize(context.Background(), intent(100))
	require.NoError(t, err)

	assert.Equal(t, r1.Selected.ID, r2.Selected.ID)
	assert.InDelta(t, r1.SelectedScore.TotalScore, r2.SelectedScore.TotalScore, 1e-9)
}

func TestOptimizer_PreferredProviderPromoted(t *testing.T) {
	cfg := config.DefaultOptimizer()
	cfg.EnabledRouteKinds["hub"] = true
	cfg.PreferredProviders = []string{"hub_provider_EUR"}
	o := New(cfg, nil)

	result, err := o.Optimize(context.Background(), intent(100))
	require.NoError(t, err)
	assert.Contains(t, result.Selected.Providers, "hub_provider_EUR")
}

func TestOptimizer_Learn_UpdatesAxisEMA(t *testing.T) {
	cfg := config.DefaultOptimizer()
	o := New(cfg, nil)

	o.Learn(model.RouteOutcome{
		RouteID:          "direct_USD_KES",
		Success:          true,
		RealizedFee:      decimal.NewFromFloat(1.0),
		RealizedDelivery: 20 * time.Minute,
		Amount:           decimal.NewFromInt(100),
	})

	o.mu.Lock()
	la, ok := o.learned["direct_USD_KES"]
	o.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 1, la.observations)
	assert.Greater(t, la.reliability, 0.0)
	assert.Equal(t, 1.0, la.compliance)
}

func TestOptimizer_Learn_ComplianceFlagDepressesLearnedAxisAndFeedsScore(t *testing.T) {
	cfg := config.DefaultOptimizer()
	o := New(cfg, nil)

	o.Learn(model.RouteOutcome{
		RouteID:           "direct_USD_KES",
		Success:           true,
		RealizedFee:       decimal.NewFromFloat(1.0),
		RealizedDelivery:  20 * time.Minute,
		Amount:            decimal.NewFromInt(100),
		ComplianceFlagged: true,
	})

	o.mu.Lock()
	la, ok := o.learned["direct_USD_KES"]
	o.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 0.0, la.compliance)

	result, err := o.Optimize(context.Background(), intent(100))
	require.NoError(t, err)
	for _, s := range append(result.Alternatives, *result.SelectedScore) {
		if s.Route.ID == "direct_USD_KES" {
			assert.Less(t, s.ComplianceScore, s.Route.ComplianceScore)
		}
	}
}

func TestOptimizer_Process_ReturnsFailedStageResultOnNoRoute(t *testing.T) {
	cfg := config.DefaultOptimizer()
	cfg.EnabledRouteKinds = map[string]bool{}
	o := New(cfg, nil)
	wfCtx := model.NewWorkflowContext("wf-1", intent(50))

	result := o.Process(context.Background(), wfCtx)
	assert.False(t, result.OK)
	assert.Equal(t, model.ErrNoViableRoute, result.ErrKind)
}
