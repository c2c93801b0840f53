package processor

import (
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/stage"
)

// NewPaymentService creates the payment_service rail worker backing
// create_payment, validate_payment and confirm_payment — three stages share
// one capability because they are all "ask the ledger" operations (§4.5).
func NewPaymentService() *RailWorker {
	return NewRailWorker(RailConfig{
		Capability: stage.CapPaymentService,
		Outcomes:   OutcomeDistribution{SuccessRate: 0.99, TransientFailureRate: 0.01},
		MinLatency: 5 * time.Millisecond,
		MaxLatency: 20 * time.Millisecond,
		Build: func(wfCtx *model.WorkflowContext) (any, string) {
			switch wfCtx.CurrentStage {
			case model.StageCreatePayment:
				record := map[string]any{
					"reference_id": wfCtx.Intent.ReferenceID,
					"amount":       wfCtx.Intent.Amount.String(),
					"corridor":     []string{wfCtx.Intent.SourceCurrency, wfCtx.Intent.DestCurrency},
				}
				return record, "payment record created"
			case model.StageValidatePayment:
				return true, "payment record validated"
			case model.StageConfirmPayment:
				var txHash string
				if settle, ok := wfCtx.Result(model.StageSettlePayment); ok {
					if m, ok := settle.Payload.(map[string]any); ok {
						txHash, _ = m["transaction_hash"].(string)
					}
				}
				return map[string]any{"completed": true, "transaction_hash": txHash}, "payment confirmed"
			default:
				return true, "ok"
			}
		},
	})
}

// NewLiquidityChecker creates the liquidity rail worker backing
// check_liquidity: on success it reports available=true without looking at
// the route's corridor or amount.
func NewLiquidityChecker() *RailWorker {
	return NewRailWorker(RailConfig{
		Capability: stage.CapLiquidity,
		Outcomes:   OutcomeDistribution{SuccessRate: 0.97, TransientFailureRate: 0.02, PermanentFailureRate: 0.01},
		MinLatency: 10 * time.Millisecond,
		MaxLatency: 40 * time.Millisecond,
		Build: func(wfCtx *model.WorkflowContext) (any, string) {
			return map[string]any{"available": true}, "liquidity available"
		},
	})
}

// NewExchangeRateLocker creates the exchange_rate rail worker backing
// lock_exchange_rate: produces a locked rate with a short expiry.
func NewExchangeRateLocker() *RailWorker {
	return NewRailWorker(RailConfig{
		Capability: stage.CapExchangeRate,
		Outcomes:   OutcomeDistribution{SuccessRate: 0.98, TransientFailureRate: 0.02},
		MinLatency: 10 * time.Millisecond,
		MaxLatency: 30 * time.Millisecond,
		Build: func(wfCtx *model.WorkflowContext) (any, string) {
			expiry := time.Now().Add(2 * time.Minute)
			return map[string]any{"rate": 1.0, "expires_at": expiry}, "rate locked"
		},
	})
}
