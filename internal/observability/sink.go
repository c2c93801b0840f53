// Package observability defines the Observability Sink the Orchestrator
// reports through: a small interface plus a Prometheus metrics
// implementation and an OpenTelemetry tracing implementation. Neither
// implementation stands up a scrape endpoint or exporter pipeline — wiring
// the transport is left to the embedding application, per the Non-goals.
package observability

import (
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/model"
)

// Sink receives stage- and workflow-level outcomes as they happen. A nil
// Sink is never passed around; NoOp satisfies call sites that don't wire one.
type Sink interface {
	RecordStage(stageID model.StageID, capability string, result model.StageResult)
	RecordWorkflow(result model.WorkflowResult)
}

// NoOp is the zero-cost default Sink.
type NoOp struct{}

func (NoOp) RecordStage(model.StageID, string, model.StageResult) {}
func (NoOp) RecordWorkflow(model.WorkflowResult)                  {}

// Multi fans a single recording out to every sink it wraps — used to run
// metrics and tracing side by side without the orchestrator knowing about
// either concretely.
type Multi []Sink

func (m Multi) RecordStage(stageID model.StageID, capability string, result model.StageResult) {
	for _, s := range m {
		s.RecordStage(stageID, capability, result)
	}
}

func (m Multi) RecordWorkflow(result model.WorkflowResult) {
	for _, s := range m {
		s.RecordWorkflow(result)
	}
}

// StageCounters is the per-capability aggregate view the metrics
// aggregation feature (§5 supplemented features item 3) folds into
// Orchestrator.Metrics(): call counts and a rolling average duration,
// computed from whatever the Sink has observed so far.
type StageCounters struct {
	Capability     string
	Total          int64
	Succeeded      int64
	Failed         int64
	AvgElapsed     time.Duration
}
