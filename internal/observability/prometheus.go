package observability

import (
	"sync"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink records stage and workflow outcomes as Prometheus counters
// and histograms. It never starts an HTTP handler — the caller passes a
// prometheus.Registerer (or nil to register on the default one) and wires
// /metrics themselves, if at all.
type PrometheusSink struct {
	stageTotal      *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	workflowTotal   *prometheus.CounterVec
	workflowElapsed *prometheus.HistogramVec

	mu       sync.Mutex
	counters map[string]*StageCounters
}

// NewPrometheusSink registers its collectors against reg (prometheus.DefaultRegisterer
// if nil) and returns a ready Sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &PrometheusSink{
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus", Subsystem: "orchestration", Name: "stage_invocations_total",
			Help: "Count of stage invocations by capability and outcome.",
		}, []string{"stage", "capability", "ok"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nimbus", Subsystem: "orchestration", Name: "stage_duration_seconds",
			Help: "Stage invocation duration in seconds.", Buckets: prometheus.DefBuckets,
		}, []string{"stage", "capability"}),
		workflowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus", Subsystem: "orchestration", Name: "workflow_runs_total",
			Help: "Count of workflow runs by terminal status.",
		}, []string{"status"}),
		workflowElapsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nimbus", Subsystem: "orchestration", Name: "workflow_duration_seconds",
			Help: "Workflow run duration in seconds.", Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		counters: make(map[string]*StageCounters),
	}

	reg.MustRegister(s.stageTotal, s.stageDuration, s.workflowTotal, s.workflowElapsed)
	return s
}

// RecordStage implements Sink.
func (s *PrometheusSink) RecordStage(stageID model.StageID, capability string, result model.StageResult) {
	okLabel := "false"
	if result.OK {
		okLabel = "true"
	}
	s.stageTotal.WithLabelValues(string(stageID), capability, okLabel).Inc()
	s.stageDuration.WithLabelValues(string(stageID), capability).Observe(result.Elapsed.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[capability]
	if !ok {
		c = &StageCounters{Capability: capability}
		s.counters[capability] = c
	}
	c.Total++
	if result.OK {
		c.Succeeded++
	} else {
		c.Failed++
	}
	c.AvgElapsed = (c.AvgElapsed*time.Duration(c.Total-1) + result.Elapsed) / time.Duration(c.Total)
}

// RecordWorkflow implements Sink.
func (s *PrometheusSink) RecordWorkflow(result model.WorkflowResult) {
	s.workflowTotal.WithLabelValues(string(result.Status)).Inc()
	s.workflowElapsed.WithLabelValues(string(result.Status)).Observe(result.Elapsed.Seconds())
}

// Counters returns a snapshot of the per-capability aggregate counters
// (§5 supplemented features item 3).
func (s *PrometheusSink) Counters() map[string]StageCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]StageCounters, len(s.counters))
	for k, v := range s.counters {
		out[k] = *v
	}
	return out
}
