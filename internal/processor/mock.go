package processor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/model"
)

// OutcomeDistribution defines the probability of each stage outcome a
// RailWorker simulates — an approval/decline/error split generalized to the
// three outcomes every non-MMO, non-settlement rail stage can produce.
type OutcomeDistribution struct {
	SuccessRate          float64
	TransientFailureRate float64
	PermanentFailureRate float64
}

// RailConfig configures a RailWorker.
type RailConfig struct {
	Capability string
	Outcomes   OutcomeDistribution
	MinLatency time.Duration
	MaxLatency time.Duration
	// Build constructs the stage-specific payload and message for a success
	// outcome; it receives the WorkflowContext so it can read prior stage
	// payloads (e.g. confirm_payment reading settle_payment's tx hash).
	Build func(wfCtx *model.WorkflowContext) (payload any, message string)
}

// RailWorker simulates a generic rail-backed stage (payment_service,
// liquidity, exchange_rate) with configurable success/failure odds and
// latency.
type RailWorker struct {
	cfg RailConfig
	rng *rand.Rand

	mu       sync.Mutex
	degraded bool
}

// NewRailWorker creates a RailWorker from the given config.
func NewRailWorker(cfg RailConfig) *RailWorker {
	return &RailWorker{cfg: cfg, rng: rand.New(rand.NewSource(1))}
}

func (w *RailWorker) Capability() string { return w.cfg.Capability }

// SetDegraded toggles degraded mode (mostly transient failures) for tests
// exercising the Supervisor's retry envelope and breaker.
func (w *RailWorker) SetDegraded(degraded bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.degraded = degraded
}

// Process implements worker.Worker.
func (w *RailWorker) Process(ctx context.Context, wfCtx *model.WorkflowContext) model.StageResult {
	start := time.Now()
	stage := wfCtx.CurrentStage

	latency := w.simulateLatency()
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return model.Failed(stage, model.ErrStageTimeout, "context cancelled while simulating rail latency", time.Since(start), 1)
	}

	w.mu.Lock()
	degraded := w.degraded
	roll := w.rng.Float64()
	w.mu.Unlock()

	dist := w.cfg.Outcomes
	if degraded {
		dist = OutcomeDistribution{SuccessRate: 0.2, TransientFailureRate: 0.8}
	}

	switch {
	case roll < dist.SuccessRate:
		payload, message := "ok", "stage completed"
		if w.cfg.Build != nil {
			var p any
			p, message = w.cfg.Build(wfCtx)
			payload = p
		}
		return model.Succeeded(stage, payload, message, time.Since(start), 1)
	case roll < dist.SuccessRate+dist.TransientFailureRate:
		return model.Failed(stage, model.ErrAdapterTransient, "rail reported a transient error", time.Since(start), 1)
	default:
		return model.Failed(stage, model.ErrAdapterPermanent, "rail reported a permanent error", time.Since(start), 1)
	}
}

func (w *RailWorker) simulateLatency() time.Duration {
	min, max := w.cfg.MinLatency, w.cfg.MaxLatency
	if max <= min {
		return min
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return min + time.Duration(w.rng.Int63n(int64(max-min)))
}
