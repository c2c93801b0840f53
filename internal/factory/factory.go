// Package factory implements the Workflow Factory (C7): a catalog of named
// presets plus the amount/corridor routing policy that picks one for an
// intent, grounded on payment_workflow_factory.py's WorkflowFactory.
package factory

import (
	"fmt"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/nimbus-payments/orchestration-core/internal/observability"
	"github.com/nimbus-payments/orchestration-core/internal/orchestrator"
	"github.com/nimbus-payments/orchestration-core/internal/registry"
	"github.com/nimbus-payments/orchestration-core/internal/stage"
	"github.com/nimbus-payments/orchestration-core/internal/supervisor"
	"github.com/shopspring/decimal"
)

func decimalFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// Factory builds Orchestrators from the preset catalog or a custom config,
// validating required capabilities against a Registry before construction.
type Factory struct {
	reg     *registry.Registry
	presets map[Preset]Definition
	routing config.Factory
	sink    observability.Sink
}

// New creates a Factory bound to a Registry. routing carries the
// amount/corridor thresholds used by RoutingPolicy (§4.7).
func New(reg *registry.Registry, routing config.Factory) *Factory {
	return &Factory{reg: reg, presets: Presets(), routing: routing, sink: observability.NoOp{}}
}

// SetSink wires an Observability Sink into every Orchestrator this Factory
// builds from here on.
func (f *Factory) SetSink(sink observability.Sink) {
	if sink == nil {
		sink = observability.NoOp{}
	}
	f.sink = sink
}

// Build constructs the Orchestrator for a named preset, failing fast with
// ErrMissingDependency if any required capability has no registered worker
// (§4.7: "build(preset) validates that all required capabilities are
// registered").
func (f *Factory) Build(preset Preset) (*orchestrator.Orchestrator, error) {
	def, ok := f.presets[preset]
	if !ok {
		return nil, fmt.Errorf("factory: unknown preset %q", preset)
	}
	return f.build(def.Config, def.RequiredCapabilities, def.OptionalStages)
}

// BuildCustom is the build_custom(name, config, required) analogue: an
// ad hoc Core config and required-capability list not in the catalog.
func (f *Factory) BuildCustom(cfg config.Core, required []string, optionalStages []model.StageID) (*orchestrator.Orchestrator, error) {
	return f.build(cfg, required, optionalStages)
}

func (f *Factory) build(cfg config.Core, required []string, optionalStages []model.StageID) (*orchestrator.Orchestrator, error) {
	if missing := f.reg.MissingCapabilities(required...); len(missing) > 0 {
		return nil, model.NewError(model.ErrMissingDependency, "",
			fmt.Sprintf("missing required capabilities: %v", missing), nil)
	}

	sup := supervisor.New(f.reg, cfg.Supervisor)
	pipeline := annotateOptional(stage.Pipeline(), optionalStages)
	orc := orchestrator.New(cfg, sup, pipeline)
	orc.SetSink(f.sink)
	return orc, nil
}

// annotateOptional marks the given stage ids as Optional in a copy of the
// pipeline, leaving the shared stage.Pipeline() template untouched.
func annotateOptional(pipeline []stage.Executor, optional []model.StageID) []stage.Executor {
	if len(optional) == 0 {
		return pipeline
	}
	set := make(map[model.StageID]bool, len(optional))
	for _, id := range optional {
		set[id] = true
	}
	out := make([]stage.Executor, len(pipeline))
	for i, e := range pipeline {
		e.Optional = e.Optional || set[e.ID]
		out[i] = e
	}
	return out
}

// RoutingPolicy picks a preset for an intent from the amount/corridor
// thresholds (§4.7): high_value beats the other rules; fast_track requires
// both a low amount and a trusted corridor; compliance_heavy triggers on a
// regulated corridor regardless of amount; everything else is standard.
func (f *Factory) RoutingPolicy(intent model.PaymentIntent) Preset {
	if intent.Amount.GreaterThan(decimalFromFloat(f.routing.HighValueThreshold)) {
		return PresetHighValue
	}

	corridor := countryCorridor(intent)
	if f.routing.RegulatedCorridors[corridor] {
		return PresetComplianceHeavy
	}
	if intent.Amount.LessThan(decimalFromFloat(f.routing.LowThreshold)) && f.routing.TrustedCorridors[corridor] {
		return PresetFastTrack
	}
	return PresetStandard
}

func countryCorridor(intent model.PaymentIntent) [2]string {
	src, dst := intent.CountryCorridor()
	return [2]string{src, dst}
}

// ValidateConfig returns structural warnings (never errors) about a custom
// config, mirroring validate_workflow_config's "too low / too high" checks —
// used by BuildCustom callers before committing to a config.
func ValidateConfig(cfg config.Core) []string {
	var warnings []string

	if t := cfg.StageTimeouts["create_payment"]; t > 0 && t < time.Second {
		warnings = append(warnings, "create_payment timeout is very low")
	}
	if t := cfg.StageTimeouts["validate_compliance"]; t > 0 && t < 5*time.Second {
		warnings = append(warnings, "validate_compliance timeout is very low")
	}
	if t := cfg.StageTimeouts["settle_payment"]; t > 0 && t < 30*time.Second {
		warnings = append(warnings, "settle_payment timeout is very low")
	}
	if cfg.Supervisor.RetryAttempts > 10 {
		warnings = append(warnings, "retry_attempts is unusually high")
	}
	if cfg.Orchestrator.MaxParallelSteps > 32 {
		warnings = append(warnings, "max_parallel_steps is unusually high")
	}

	return warnings
}
