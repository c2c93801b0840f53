// Package compliance implements the Compliance Worker (C4): conditional
// KYC/AML/sanctions/PEP/adverse-media/regulatory checks combined into a
// weighted risk score, grounded on compliance_checker.py's
// ComplianceCheckerAgent.
package compliance

import (
	"context"
	"sync"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/model"
)

// axisWeights are the participating-weight table from §4.4, renormalized
// over whichever checks actually ran for a given intent.
var axisWeights = map[model.CheckKind]float64{
	model.CheckSanctions:    0.4,
	model.CheckAML:          0.3,
	model.CheckPEP:          0.2,
	model.CheckKYC:          0.1,
	model.CheckAdverseMedia: 0.1,
	model.CheckRegulatory:   0.2,
}

// Checker is the signature of one named check against an intent. The Worker
// does not accept Checker values: its check set is the fixed set of built-in
// methods below, and the sanctions, PEP and adverse-media checks look the
// parties up in Fixtures instead of reaching any external service.
type Checker func(ctx context.Context, intent model.PaymentIntent) model.CheckOutcome

// Fixtures lets tests and deployments declare known-bad parties without
// standing up a real sanctions/PEP provider.
type Fixtures struct {
	SanctionedNames map[string]bool
	PEPNames        map[string]bool
	AdverseMedia    map[string]bool
}

// Worker is the Compliance Worker.
type Worker struct {
	cfg      config.Compliance
	fixtures Fixtures
	alert    func(category, payload string) // Observability Sink hook, nil-safe

	mu       sync.Mutex
	patterns map[[2]string]*model.RiskPattern
}

func (w *Worker) Capability() string { return "compliance" }

// New creates a Compliance Worker. alert, if non-nil, is invoked once per
// violation category on high-risk, sanctions-match, or regulatory findings
// (§4.4's "Alerts" side effect) — the Observability Sink binds it.
func New(cfg config.Compliance, fixtures Fixtures, alert func(category, payload string)) *Worker {
	return &Worker{cfg: cfg, fixtures: fixtures, alert: alert, patterns: make(map[[2]string]*model.RiskPattern)}
}

// Process implements worker.Worker for the validate_compliance stage.
func (w *Worker) Process(ctx context.Context, wfCtx *model.WorkflowContext) model.StageResult {
	start := time.Now()
	result := w.Check(ctx, wfCtx.Intent)
	if !result.OK {
		return model.Failed(model.StageValidateCompliance, model.ErrComplianceRejected, firstOrDefault(result.Violations, "compliance check failed"), time.Since(start), 1)
	}
	return model.Succeeded(model.StageValidateCompliance, result, "compliance passed", time.Since(start), 1)
}

func firstOrDefault(items []string, def string) string {
	if len(items) > 0 {
		return items[0]
	}
	return def
}

// Check runs the conditional check set and aggregates the result (§4.4).
func (w *Worker) Check(ctx context.Context, intent model.PaymentIntent) model.ComplianceResult {
	var checks []model.CheckOutcome

	amount, _ := intent.Amount.Float64()
	if amount >= w.cfg.KYCThreshold {
		checks = append(checks, w.kyc(intent))
	}
	if amount >= w.cfg.AMLThreshold {
		checks = append(checks, w.aml(intent))
	}
	if w.cfg.EnableSanctions {
		checks = append(checks, w.sanctions(intent))
	}
	if w.cfg.EnablePEP {
		checks = append(checks, w.pep(intent))
	}
	if w.cfg.EnableAdverseMedia {
		checks = append(checks, w.adverseMedia(intent))
	}
	if w.cfg.EnableRegulatory {
		checks = append(checks, w.regulatory(intent))
	}

	riskScore, violations := aggregate(checks)
	riskLevel := riskLevelFor(w.cfg, riskScore)

	failed := false
	for _, c := range checks {
		if c.Status == model.CheckFailed {
			failed = true
		}
	}
	if failed {
		// A failed check (sanctions match, PEP hit, ...) is a confirmed hit,
		// not a sample to be diluted by the other axes' low-risk scores.
		riskLevel = model.RiskCritical
	}
	ok := !failed && riskScore <= w.cfg.HighRiskThreshold

	var requiredActions []string
	if !ok {
		requiredActions = append(requiredActions, "manual_review")
	}

	result := model.ComplianceResult{
		OK:              ok,
		RiskScore:       riskScore,
		RiskLevel:       riskLevel,
		Checks:          checks,
		Violations:      violations,
		RequiredActions: requiredActions,
	}

	w.recordPattern(intent, result)
	w.raiseAlerts(intent, result)
	return result
}

func (w *Worker) raiseAlerts(intent model.PaymentIntent, result model.ComplianceResult) {
	if w.alert == nil || !w.cfg.AlertOnHighRisk {
		return
	}
	if result.RiskLevel == model.RiskHigh || result.RiskLevel == model.RiskCritical {
		w.alert("high_risk", intent.ReferenceID)
	}
	for _, v := range result.Violations {
		if v == "sanctions_match" {
			w.alert("sanctions_match", intent.ReferenceID)
		}
		if v == "regulatory_violation" {
			w.alert("regulatory_violation", intent.ReferenceID)
		}
	}
}

func aggregate(checks []model.CheckOutcome) (float64, []string) {
	if len(checks) == 0 {
		return 0, nil
	}

	var weightedSum, totalWeight float64
	var violations []string
	for _, c := range checks {
		weight := axisWeights[c.Kind]
		weightedSum += weight * c.AxisRisk
		totalWeight += weight

		if c.Status == model.CheckFailed {
			switch c.Kind {
			case model.CheckSanctions:
				violations = append(violations, "sanctions_match")
			case model.CheckRegulatory:
				violations = append(violations, "regulatory_violation")
			default:
				violations = append(violations, string(c.Kind)+"_check_failed")
			}
		}
	}

	if totalWeight == 0 {
		return 0, violations
	}
	return weightedSum / totalWeight, violations
}

// riskLevelFor applies the §4.4 threshold ladder. With the default
// high=0.7/medium=0.4, medium_threshold·1.75 coincides with high_threshold,
// so the "high" band is empty at defaults — a deliberately literal
// implementation of the documented formula; operators who want a non-empty
// high band configure medium_threshold below high_threshold/1.75.
func riskLevelFor(cfg config.Compliance, riskScore float64) model.RiskLevel {
	switch {
	case riskScore >= cfg.HighRiskThreshold:
		return model.RiskCritical
	case riskScore >= cfg.MediumRiskThreshold*1.75:
		return model.RiskHigh
	case riskScore >= 0.2:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func (w *Worker) recordPattern(intent model.PaymentIntent, result model.ComplianceResult) {
	key := [2]string{intent.SourceCurrency, intent.DestCurrency}

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.patterns[key]
	if !ok {
		p = &model.RiskPattern{SourceCurrency: key[0], DestCurrency: key[1]}
		w.patterns[key] = p
	}

	complianceSample := 0.0
	if result.OK {
		complianceSample = 1.0
	}
	const alpha = 0.2
	if p.Observations == 0 {
		p.RiskScoreEMA = result.RiskScore
		p.ComplianceRateEMA = complianceSample
	} else {
		p.RiskScoreEMA += alpha * (result.RiskScore - p.RiskScoreEMA)
		p.ComplianceRateEMA += alpha * (complianceSample - p.ComplianceRateEMA)
	}
	p.Observations++
	if p.Observations > w.cfg.RiskPatternHistorySize {
		p.Observations = w.cfg.RiskPatternHistorySize
	}
}

func (w *Worker) kyc(intent model.PaymentIntent) model.CheckOutcome {
	start := time.Now()
	risk := 0.1
	if intent.Sender.Name == "" {
		risk = 0.6
	}
	return model.CheckOutcome{Kind: model.CheckKYC, Status: statusFor(risk), AxisRisk: risk, Confidence: 0.9, Duration: time.Since(start)}
}

func (w *Worker) aml(intent model.PaymentIntent) model.CheckOutcome {
	start := time.Now()
	risk := 0.15
	return model.CheckOutcome{Kind: model.CheckAML, Status: statusFor(risk), AxisRisk: risk, Confidence: 0.9, Duration: time.Since(start)}
}

// sanctions matches the sender and recipient names against the sanctioned
// fixture set; a hit forces critical risk and a failed check (S3).
func (w *Worker) sanctions(intent model.PaymentIntent) model.CheckOutcome {
	start := time.Now()
	if w.fixtures.SanctionedNames[intent.Sender.Name] || w.fixtures.SanctionedNames[intent.Recipient.Name] {
		return model.CheckOutcome{Kind: model.CheckSanctions, Status: model.CheckFailed, AxisRisk: 1.0, Confidence: 0.99, Duration: time.Since(start)}
	}
	return model.CheckOutcome{Kind: model.CheckSanctions, Status: model.CheckPassed, AxisRisk: 0.02, Confidence: 0.95, Duration: time.Since(start)}
}

func (w *Worker) pep(intent model.PaymentIntent) model.CheckOutcome {
	start := time.Now()
	if w.fixtures.PEPNames[intent.Sender.Name] || w.fixtures.PEPNames[intent.Recipient.Name] {
		return model.CheckOutcome{Kind: model.CheckPEP, Status: model.CheckFailed, AxisRisk: 0.8, Confidence: 0.9, Duration: time.Since(start)}
	}
	return model.CheckOutcome{Kind: model.CheckPEP, Status: model.CheckPassed, AxisRisk: 0.05, Confidence: 0.9, Duration: time.Since(start)}
}

func (w *Worker) adverseMedia(intent model.PaymentIntent) model.CheckOutcome {
	start := time.Now()
	if w.fixtures.AdverseMedia[intent.Sender.Name] || w.fixtures.AdverseMedia[intent.Recipient.Name] {
		return model.CheckOutcome{Kind: model.CheckAdverseMedia, Status: model.CheckFailed, AxisRisk: 0.7, Confidence: 0.8, Duration: time.Since(start)}
	}
	return model.CheckOutcome{Kind: model.CheckAdverseMedia, Status: model.CheckPassed, AxisRisk: 0.05, Confidence: 0.8, Duration: time.Since(start)}
}

func (w *Worker) regulatory(intent model.PaymentIntent) model.CheckOutcome {
	start := time.Now()
	risk := 0.1
	return model.CheckOutcome{Kind: model.CheckRegulatory, Status: statusFor(risk), AxisRisk: risk, Confidence: 0.85, Duration: time.Since(start)}
}

func statusFor(risk float64) model.CheckStatus {
	if risk >= 0.5 {
		return model.CheckFailed
	}
	return model.CheckPassed
}

// Pattern returns the learned risk pattern for a corridor, if observed.
func (w *Worker) Pattern(sourceCurrency, destCurrency string) (model.RiskPattern, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.patterns[[2]string{sourceCurrency, destCurrency}]
	if !ok {
		return model.RiskPattern{}, false
	}
	return *p, true
}
