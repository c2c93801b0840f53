package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nimbus-payments/orchestration-core/internal/adapter"
	"github.com/nimbus-payments/orchestration-core/internal/compliance"
	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/factory"
	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/observability"
	"github.com/nimbus-payments/orchestration-core/internal/optimizer"
	"github.com/nimbus-payments/orchestration-core/internal/processor"
	"github.com/nimbus-payments/orchestration-core/internal/registry"
	"github.com/nimbus-payments/orchestration-core/internal/stage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	fmt.Println("Nimbus Payment Orchestrator - starting...")
	slog.Info("server_starting")

	sink := observability.NewPrometheusSink(prometheus.NewRegistry())

	reg := registry.New()
	reg.Register(stage.CapPaymentService, processor.NewPaymentService())
	reg.Register(stage.CapLiquidity, processor.NewLiquidityChecker())
	reg.Register(stage.CapExchangeRate, processor.NewExchangeRateLocker())
	reg.Register(stage.CapRouteOptimization, optimizer.New(config.DefaultOptimizer(), nil))
	reg.Register(stage.CapCompliance, compliance.New(config.DefaultCompliance(), compliance.Fixtures{}, func(category, payload string) {
		slog.Warn("compliance_alert", "category", category, "payload", payload)
	}))
	if err := reg.Register(stage.CapMMOService, adapter.NewMMOWorker(adapter.NewInMemoryMMO(nil))); err != nil {
		slog.Error("server_startup_failed", "error", err)
		os.Exit(1)
	}
	if err := reg.Register(stage.CapSettlement, adapter.NewSettlementWorker(adapter.NewInMemorySettlement(nil))); err != nil {
		slog.Error("server_startup_failed", "error", err)
		os.Exit(1)
	}

	fac := factory.New(reg, config.DefaultFactory())
	fac.SetSink(sink)

	preset := fac.RoutingPolicy(sampleIntent())
	orc, err := fac.Build(preset)
	if err != nil {
		slog.Error("server_startup_failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	workflowID := uuid.NewString()
	result := orc.Run(ctx, workflowID, sampleIntent())
	slog.Info("workflow_completed",
		"workflow_id", result.WorkflowID,
		"status", result.Status,
		"ok", result.OK,
		"elapsed", result.Elapsed,
	)
}

// sampleIntent is a placeholder payment intent standing in for the ingress
// boundary (HTTP handler, queue consumer) a deployment wires in front of
// the Factory — out of scope here per the Non-goals.
func sampleIntent() model.PaymentIntent {
	return model.PaymentIntent{
		ReferenceID:    uuid.NewString(),
		PaymentType:    model.PaymentPersonalRemittance,
		PaymentMethod:  model.MethodBankPayout,
		Amount:         decimal.NewFromInt(250),
		SourceCurrency: "USD",
		DestCurrency:   "KES",
		Sender:         model.PartyDescriptor{Name: "A. Sender", Country: "US"},
		Recipient:      model.PartyDescriptor{Name: "B. Recipient", Country: "KE"},
	}
}
