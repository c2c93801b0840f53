// Package supervisor implements the Worker Pool / Supervisor (C2): it
// selects a worker for a capability, wraps the call in a per-worker circuit
// breaker and retry envelope, and tracks the EMA health signal that feeds
// worker selection, in place of a windowed sample/duration monitor and flat
// eligible-processor sorting.
package supervisor

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/registry"
	"github.com/nimbus-payments/orchestration-core/internal/worker"
	"github.com/sony/gobreaker/v2"
)

// emaAlpha is the smoothing factor for both the success-rate and
// processing-time EMAs — 0.2 weights the most recent ~5 calls most heavily
// while still damping single-call noise, the same order of magnitude as a
// 50-sample/10-minute sliding window.
const emaAlpha = 0.2

// entry is the Supervisor's per-worker-instance runtime state.
type entry struct {
	id      string
	w       worker.Worker
	breaker *gobreaker.CircuitBreaker[model.StageResult]

	mu       sync.Mutex
	state    model.WorkerState
}

// Supervisor owns every worker's breaker and health state and is the only
// component allowed to invoke a worker directly — stages call through it.
type Supervisor struct {
	reg    *registry.Registry
	cfg    config.Supervisor
	rng    *rand.Rand

	mu      sync.RWMutex
	entries map[string]*entry
	rrCursor map[string]int // round-robin cursor per capability
}

// New creates a Supervisor bound to a registry. The registry is consulted
// lazily on each Invoke so workers registered after startup are picked up.
func New(reg *registry.Registry, cfg config.Supervisor) *Supervisor {
	return &Supervisor{
		reg:      reg,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(1)),
		entries:  make(map[string]*entry),
		rrCursor: make(map[string]int),
	}
}

// Track registers a worker instance's breaker/health bookkeeping under id.
// Stages never call this directly — candidatesFor calls it the first time a
// registered worker is seen for a capability (§4.1, §4.2).
func (s *Supervisor) Track(id string, w worker.Worker) {
	breaker := gobreaker.NewCircuitBreaker[model.StageResult](gobreaker.Settings{
		Name:        id,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     s.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(s.cfg.BreakerThreshold)
		},
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entry{
		id:      id,
		w:       w,
		breaker: breaker,
		state: model.WorkerState{
			ID:             id,
			Capability:     w.Capability(),
			Status:         model.WorkerIdle,
			SuccessRateEMA: 1.0,
			Breaker:        model.BreakerClosed,
		},
	}
}

// Invoke selects one worker for capability via the configured policy and
// runs the retry envelope against it (§4.2): up to retry_attempts+1 tries,
// delay before attempt k (k≥1) is retry_delay·2^(k-1), stopping immediately
// on a non-retriable failure or on cancellation. If every candidate is
// circuit-open, it fails fast with ErrCircuitOpen without invoking anyone.
func (s *Supervisor) Invoke(ctx context.Context, capability string, wfCtx *model.WorkflowContext) model.StageResult {
	start := time.Now()
	candidates := s.candidatesFor(capability)
	if len(candidates) == 0 {
		return model.Failed(model.StageID(capability), model.ErrMissingDependency,
			"no worker registered for capability "+capability, time.Since(start), 0)
	}

	var e *entry
	for _, c := range candidates {
		if !s.isOpen(c) {
			e = c
			break
		}
	}
	if e == nil {
		slog.Warn("worker_pool_exhausted", "capability", capability)
		return model.Failed(model.StageID(capability), model.ErrCircuitOpen,
			"all workers for "+capability+" have an open circuit", time.Since(start), 0)
	}

	var lastResult model.StageResult
	maxAttempts := s.cfg.RetryAttempts + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return model.Failed(model.StageID(capability), model.ErrCancelled, "context cancelled mid-retry", time.Since(start), attempt-1)
			default:
			}
			if s.cfg.RetryDelay > 0 {
				backoff := s.cfg.RetryDelay * time.Duration(1<<uint(attempt-2))
				select {
				case <-ctx.Done():
					return model.Failed(model.StageID(capability), model.ErrCancelled, "context cancelled during retry backoff", time.Since(start), attempt-1)
				case <-time.After(backoff):
				}
			}
		}

		result, _ := e.breaker.Execute(func() (model.StageResult, error) {
			return e.w.Process(ctx, wfCtx), nil
		})
		result.Attempts = attempt
		s.recordOutcome(e, result)
		lastResult = result

		slog.Debug("worker_invocation",
			"worker_id", e.id, "capability", capability, "ok", result.OK,
			"attempt", attempt, "elapsed", result.Elapsed)

		if result.OK || !result.ErrKind.Retriable() {
			return result
		}
		if s.isOpen(e) {
			return model.Failed(model.StageID(capability), model.ErrCircuitOpen,
				"breaker opened mid-retry for "+capability, time.Since(start), attempt)
		}
	}

	return lastResult
}

// InvokeAll runs up to n distinct, non-open candidate workers for capability
// concurrently, each a single attempt with no retry envelope, and returns
// every result obtained (§4.6 consensus mode: failed invocations are still
// returned, and consensus.Arbitrate counts them as negative votes rather
// than excluding them). If fewer than n non-open candidates exist, it uses
// as many as are available.
func (s *Supervisor) InvokeAll(ctx context.Context, capability string, wfCtx *model.WorkflowContext, n int) []model.StageResult {
	candidates := s.candidatesFor(capability)
	var usable []*entry
	for _, c := range candidates {
		if !s.isOpen(c) {
			usable = append(usable, c)
		}
		if len(usable) == n {
			break
		}
	}
	if len(usable) == 0 {
		return nil
	}

	results := make([]model.StageResult, len(usable))
	var wg sync.WaitGroup
	for i, e := range usable {
		wg.Add(1)
		go func(i int, e *entry) {
			defer wg.Done()
			result, _ := e.breaker.Execute(func() (model.StageResult, error) {
				return e.w.Process(ctx, wfCtx), nil
			})
			s.recordOutcome(e, result)
			results[i] = result
		}(i, e)
	}
	wg.Wait()
	return results
}

// State returns a snapshot of a tracked worker's runtime state.
func (s *Supervisor) State(id string) (model.WorkerState, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return model.WorkerState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

func (s *Supervisor) isOpen(e *entry) bool {
	return e.breaker.State() == gobreaker.StateOpen
}

func (s *Supervisor) recordOutcome(e *entry, result model.StageResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.breaker.State() {
	case gobreaker.StateOpen:
		e.state.Breaker = model.BreakerOpen
		e.state.BreakerOpenedAt = time.Now()
	case gobreaker.StateHalfOpen:
		e.state.Breaker = model.BreakerHalfOpen
	default:
		e.state.Breaker = model.BreakerClosed
	}

	success := 0.0
	if result.OK {
		success = 1.0
		e.state.ConsecutiveFailure = 0
	} else {
		e.state.ConsecutiveFailure++
	}
	e.state.SuccessRateEMA = ema(e.state.SuccessRateEMA, success)
	e.state.AvgProcessingEMA = emaDuration(e.state.AvgProcessingEMA, result.Elapsed)
}

// candidatesFor returns workers for a capability ordered by the configured
// selection policy (§4.2).
func (s *Supervisor) candidatesFor(capability string) []*entry {
	workers := s.reg.ByCapability(capability)
	if len(workers) == 0 {
		return nil
	}

	s.mu.Lock()
	entries := make([]*entry, 0, len(workers))
	for _, w := range workers {
		id := capability + ":" + workerIdentity(w)
		e, ok := s.entries[id]
		if !ok {
			// worker present in registry but never tracked: synthesize a
			// fresh entry on demand so a late registration still works.
			s.mu.Unlock()
			s.Track(id, w)
			s.mu.Lock()
			e = s.entries[id]
		}
		entries = append(entries, e)
	}
	s.mu.Unlock()

	switch s.cfg.SelectionPolicy {
	case config.SelectLeastInFlight:
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].snapshotInFlight() < entries[j].snapshotInFlight()
		})
	case config.SelectPerformanceBased:
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].snapshotWeight() > entries[j].snapshotWeight()
		})
		top := s.cfg.PerformanceTopK
		if top > 0 && top < len(entries) {
			entries = entries[:top]
		}
	case config.SelectRandom:
		s.rng.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
	case config.SelectRoundRobin:
		s.mu.Lock()
		cursor := s.rrCursor[capability]
		s.rrCursor[capability] = (cursor + 1) % len(entries)
		s.mu.Unlock()
		rotated := make([]*entry, len(entries))
		for i := range entries {
			rotated[i] = entries[(cursor+i)%len(entries)]
		}
		entries = rotated
	default: // weighted: success_rate / max(avg_processing_time, ε), highest first (§4.2)
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].snapshotWeight() > entries[j].snapshotWeight()
		})
	}

	return entries
}

func (e *entry) snapshotSuccess() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.SuccessRateEMA
}

func (e *entry) snapshotInFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.InFlight
}

// processingEpsilon floors the divisor in the weighted/performance_based
// selection formula so a worker with a near-zero EMA (no calls recorded
// yet, or a genuinely very fast rail) doesn't blow its weight up to
// infinity and dominate every other candidate.
const processingEpsilon = 1 * time.Millisecond

// snapshotWeight returns success_rate / max(avg_processing_time, ε) (§4.2),
// the ranking criterion for both the weighted and performance_based
// selection policies.
func (e *entry) snapshotWeight() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	avg := e.state.AvgProcessingEMA
	if avg < processingEpsilon {
		avg = processingEpsilon
	}
	return e.state.SuccessRateEMA / avg.Seconds()
}

// workerIdentity derives a stable suffix for a worker without requiring it
// to implement worker.Descriptor — callers that want a specific id should
// use Track directly instead of relying on this fallback.
func workerIdentity(w worker.Worker) string {
	if d, ok := w.(worker.Descriptor); ok {
		desc := d.Describe()
		if desc.Version != "" {
			return desc.Version
		}
	}
	return "default"
}

func ema(prev, sample float64) float64 {
	return prev + emaAlpha*(sample-prev)
}

func emaDuration(prev, sample time.Duration) time.Duration {
	if prev == 0 {
		return sample
	}
	return prev + time.Duration(emaAlpha*float64(sample-prev))
}
