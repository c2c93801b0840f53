package observability

import (
	"context"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingSink emits one span per stage and workflow outcome against an
// otel/trace.Tracer. It records after the fact rather than wrapping the
// call, so each span's start is reconstructed from the outcome's Elapsed
// duration rather than observed directly — good enough for a duration- and
// outcome-shaped trace, not for nested child spans inside a worker call.
type TracingSink struct {
	tracer trace.Tracer
	ctx    context.Context
}

// NewTracingSink builds a Sink that starts spans against tracer using ctx as
// the parent. ctx is typically context.Background() when no natural parent
// span spans the whole orchestrator lifetime.
func NewTracingSink(tracer trace.Tracer, ctx context.Context) *TracingSink {
	if ctx == nil {
		ctx = context.Background()
	}
	return &TracingSink{tracer: tracer, ctx: ctx}
}

// RecordStage implements Sink.
func (t *TracingSink) RecordStage(stageID model.StageID, capability string, result model.StageResult) {
	end := time.Now()
	start := end.Add(-result.Elapsed)
	_, span := t.tracer.Start(t.ctx, "stage."+string(stageID), trace.WithTimestamp(start))
	span.SetAttributes(
		attribute.String("stage.id", string(stageID)),
		attribute.String("stage.capability", capability),
		attribute.Int("stage.attempts", result.Attempts),
		attribute.Bool("stage.ok", result.OK),
	)
	if !result.OK {
		span.SetStatus(codes.Error, result.Message)
		span.SetAttributes(attribute.String("stage.error_kind", string(result.ErrKind)))
	}
	span.End(trace.WithTimestamp(end))
}

// RecordWorkflow implements Sink.
func (t *TracingSink) RecordWorkflow(result model.WorkflowResult) {
	end := time.Now()
	start := end.Add(-result.Elapsed)
	_, span := t.tracer.Start(t.ctx, "workflow.run", trace.WithTimestamp(start))
	span.SetAttributes(
		attribute.String("workflow.id", result.WorkflowID),
		attribute.String("workflow.status", string(result.Status)),
		attribute.Bool("workflow.ok", result.OK),
	)
	if !result.OK {
		span.SetStatus(codes.Error, result.Message)
		span.SetAttributes(attribute.String("workflow.error_kind", string(result.ErrorKind)))
	}
	span.End(trace.WithTimestamp(end))
}
