package factory

import (
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/stage"
)

// Preset names the catalog of predefined workflow configurations (§4.7).
type Preset string

const (
	PresetStandard           Preset = "standard"
	PresetFastTrack          Preset = "fast_track"
	PresetHighValue          Preset = "high_value"
	PresetComplianceHeavy    Preset = "compliance_heavy"
	PresetLiquidityOptimized Preset = "liquidity_optimized"
)

// Definition is one catalog entry: a full Core config plus the capabilities
// that must be registered before the Factory will build an Orchestrator
// from it, ground on payment_workflow_factory.py's WorkflowPreset.
type Definition struct {
	Name                 string
	Description          string
	Config               config.Core
	RequiredCapabilities []string
	OptionalStages       []model.StageID
}

// allCapabilities is required_agents shared by every preset in the original —
// every preset drives the same nine-stage pipeline, only the knobs differ.
var allCapabilities = []string{
	stage.CapPaymentService,
	stage.CapRouteOptimization,
	stage.CapCompliance,
	stage.CapLiquidity,
	stage.CapExchangeRate,
	stage.CapMMOService,
	stage.CapSettlement,
}

func stageTimeouts(create, validate, optimize, compliance, liquidity, rate, mmo, settle, confirm time.Duration) config.StageTimeouts {
	return config.StageTimeouts{
		"create_payment":      create,
		"validate_payment":    validate,
		"optimize_route":      optimize,
		"validate_compliance": compliance,
		"check_liquidity":     liquidity,
		"lock_exchange_rate":  rate,
		"execute_mmo":         mmo,
		"settle_payment":      settle,
		"confirm_payment":     confirm,
	}
}

// Presets returns the five predefined configurations, each grounded
// line-for-line on payment_workflow_factory.py's _create_presets table.
func Presets() map[Preset]Definition {
	base := config.Default()

	standard := base
	standard.StageTimeouts = stageTimeouts(10*time.Second, 5*time.Second, 15*time.Second, 20*time.Second, 10*time.Second, 10*time.Second, 30*time.Second, 60*time.Second, 10*time.Second)
	standard.Orchestrator.EnableConsensus = true
	standard.Orchestrator.EnableCircuitBreaker = true
	standard.Orchestrator.MaxParallelSteps = 1
	standard.Supervisor.RetryAttempts = 2 // 3 attempts total
	standard.Supervisor.RetryDelay = 1 * time.Second

	fastTrack := base
	fastTrack.StageTimeouts = stageTimeouts(5*time.Second, 3*time.Second, 10*time.Second, 10*time.Second, 5*time.Second, 5*time.Second, 20*time.Second, 30*time.Second, 5*time.Second)
	fastTrack.Orchestrator.EnableConsensus = false
	fastTrack.Orchestrator.EnableCircuitBreaker = true
	fastTrack.Orchestrator.MaxParallelSteps = 4 // enable_parallel_processing
	fastTrack.Supervisor.RetryAttempts = 1      // max_retry_attempts=2 total
	fastTrack.Supervisor.RetryDelay = 500 * time.Millisecond

	// high_value: every timeout extended, retries raised to 5. The original
	// also marks validate_compliance optional — we deliberately do NOT carry
	// that over (see DESIGN.md): an optional compliance stage on the highest
	// value corridor contradicts the consensus-gating intent the rest of
	// this spec layers on top of it, so validate_compliance stays required.
	highValue := base
	highValue.StageTimeouts = stageTimeouts(15*time.Second, 10*time.Second, 20*time.Second, 45*time.Second, 15*time.Second, 15*time.Second, 45*time.Second, 90*time.Second, 15*time.Second)
	highValue.Orchestrator.EnableConsensus = true
	highValue.Orchestrator.EnableCircuitBreaker = true
	highValue.Orchestrator.MaxParallelSteps = 1
	highValue.Supervisor.RetryAttempts = 4 // 5 attempts total
	highValue.Supervisor.RetryDelay = 2 * time.Second
	highValue.Consensus.MinAgents = 3
	highValue.Consensus.Threshold = 0.8

	complianceHeavy := base
	complianceHeavy.StageTimeouts = stageTimeouts(10*time.Second, 5*time.Second, 15*time.Second, 60*time.Second, 10*time.Second, 10*time.Second, 30*time.Second, 60*time.Second, 10*time.Second)
	complianceHeavy.Orchestrator.EnableConsensus = true
	complianceHeavy.Orchestrator.EnableCircuitBreaker = true
	complianceHeavy.Orchestrator.MaxParallelSteps = 1
	complianceHeavy.Supervisor.RetryAttempts = 3 // 4 attempts total
	complianceHeavy.Supervisor.RetryDelay = 1500 * time.Millisecond
	complianceHeavy.Compliance.EnableSanctions = true
	complianceHeavy.Compliance.EnablePEP = true
	complianceHeavy.Compliance.EnableAdverseMedia = true
	complianceHeavy.Compliance.EnableRegulatory = true

	liquidityOptimized := base
	liquidityOptimized.StageTimeouts = stageTimeouts(10*time.Second, 5*time.Second, 20*time.Second, 15*time.Second, 20*time.Second, 10*time.Second, 30*time.Second, 60*time.Second, 10*time.Second)
	liquidityOptimized.Orchestrator.EnableConsensus = true
	liquidityOptimized.Orchestrator.EnableCircuitBreaker = true
	liquidityOptimized.Orchestrator.MaxParallelSteps = 4 // enable_parallel_processing
	liquidityOptimized.Supervisor.RetryAttempts = 2      // 3 attempts total
	liquidityOptimized.Supervisor.RetryDelay = 1 * time.Second

	return map[Preset]Definition{
		PresetStandard: {
			Name:                 "Standard Payment Workflow",
			Description:          "Standard cross-border payment processing with all steps",
			Config:               standard,
			RequiredCapabilities: allCapabilities,
		},
		PresetFastTrack: {
			Name:                 "Fast Track Payment Workflow",
			Description:          "Optimized for speed with reduced compliance checks",
			Config:               fastTrack,
			RequiredCapabilities: allCapabilities,
		},
		PresetHighValue: {
			Name:                 "High Value Payment Workflow",
			Description:          "Enhanced security and compliance for high-value payments",
			Config:               highValue,
			RequiredCapabilities: allCapabilities,
		},
		PresetComplianceHeavy: {
			Name:                 "Compliance Heavy Payment Workflow",
			Description:          "Enhanced compliance checks for regulated corridors",
			Config:               complianceHeavy,
			RequiredCapabilities: allCapabilities,
		},
		PresetLiquidityOptimized: {
			Name:                 "Liquidity Optimized Payment Workflow",
			Description:          "Optimized for liquidity management and pool utilization",
			Config:               liquidityOptimized,
			RequiredCapabilities: allCapabilities,
		},
	}
}
