// Package optimizer implements the Route Optimizer Worker (C3): discover,
// filter, score, select and learn over candidate payment routes, grounded
// on payment_optimizer.py's PaymentOptimizerAgent but expressed as a single
// worker.Worker that the Supervisor invokes under the "route_optimization"
// capability.
package optimizer

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/cache"
	"github.com/nimbus-payments/orchestration-core/internal/config"
	"github.com/nimbus-payments/orchestration-core/internal/model"
	"github.com/shopspring/decimal"
)

// Discoverer enumerates candidate routes for a corridor — the real
// provider integration a deployment plugs in. A nil Discoverer falls back
// to Optimizer's built-in stub discovery, the same "mock direct/hub routes"
// placeholder payment_optimizer.py ships with pending live provider wiring.
type Discoverer interface {
	Discover(ctx context.Context, intent model.PaymentIntent, kind model.RouteKind) ([]model.CandidateRoute, error)
}

// learnedAxis is the per-route blended EMA state from the learning step.
type learnedAxis struct {
	cost, speed, reliability, compliance float64
	observations                          int
}

// Optimizer is the Route Optimizer Worker.
type Optimizer struct {
	cfg        config.Optimizer
	discoverer Discoverer
	candidates cache.Cache

	mu      sync.Mutex
	learned map[string]learnedAxis
}

// New creates an Optimizer. If discoverer is nil, the built-in stub
// discovery (one direct route plus one hub route through each of USD, EUR
// and GBP that is not an endpoint of the corridor) is used.
// The candidate cache defaults to an in-memory store; call SetCache to
// point it at a shared one (e.g. Redis) instead.
func New(cfg config.Optimizer, discoverer Discoverer) *Optimizer {
	return &Optimizer{cfg: cfg, discoverer: discoverer, candidates: cache.NewInMemory(), learned: make(map[string]learnedAxis)}
}

// SetCache replaces the candidate cache backing repeated discovery calls
// for the same corridor and amount within CandidateCacheTTL.
func (o *Optimizer) SetCache(c cache.Cache) {
	if c == nil {
		c = cache.NewInMemory()
	}
	o.candidates = c
}

// Capability implements worker.Worker.
func (o *Optimizer) Capability() string { return "route_optimization" }

// Process implements worker.Worker by running Optimize and shaping the
// result into a StageResult for the optimize_route stage.
func (o *Optimizer) Process(ctx context.Context, wfCtx *model.WorkflowContext) model.StageResult {
	start := time.Now()
	result, err := o.Optimize(ctx, wfCtx.Intent)
	if err != nil {
		return model.Failed(model.StageOptimizeRoute, model.ErrNoViableRoute, err.Error(), time.Since(start), 1)
	}
	return model.Succeeded(model.StageOptimizeRoute, result, "route selected", time.Since(start), 1)
}

// noViableRoute is a plain sentinel error — the stage converts it into the
// typed no_viable_route kind; the optimizer itself never returns kinds.
type noViableRoute string

func (e noViableRoute) Error() string { return string(e) }

// Optimize runs the six-step algorithm from §4.3: discover, filter, score,
// combine, select, then hands the selection back for a later Learn call.
func (o *Optimizer) Optimize(ctx context.Context, intent model.PaymentIntent) (model.OptimizationResult, error) {
	start := time.Now()

	candidates, err := o.discover(ctx, intent)
	if err != nil {
		return model.OptimizationResult{}, err
	}

	filtered := o.filter(candidates, intent)
	if len(filtered) == 0 {
		return model.OptimizationResult{}, noViableRoute("no candidates survived filtering")
	}

	scores := o.score(filtered, intent)
	weights := o.cfg.WeightsFor()
	for i := range scores {
		scores[i].TotalScore = weights.Cost*scores[i].CostScore +
			weights.Speed*scores[i].SpeedScore +
			weights.Reliability*scores[i].ReliabilityScore +
			weights.Compliance*scores[i].ComplianceScore
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].TotalScore != scores[j].TotalScore {
			return scores[i].TotalScore > scores[j].TotalScore
		}
		if !scores[i].Route.EstimatedFee.Equal(scores[j].Route.EstimatedFee) {
			return scores[i].Route.EstimatedFee.LessThan(scores[j].Route.EstimatedFee)
		}
		if scores[i].Route.EstimatedDelivery != scores[j].Route.EstimatedDelivery {
			return scores[i].Route.EstimatedDelivery < scores[j].Route.EstimatedDelivery
		}
		return scores[i].Route.ID < scores[j].Route.ID
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}

	selected := o.selectRoute(scores)

	alternatives := make([]model.RouteScore, 0, len(scores)-1)
	for _, s := range scores {
		if s.Route.ID != selected.Route.ID {
			alternatives = append(alternatives, s)
		}
	}

	cheapest := scores[len(scores)-1].Route.EstimatedFee
	savingsPct := 0.0
	if !cheapest.IsZero() {
		savingsPct, _ = cheapest.Sub(selected.Route.EstimatedFee).Div(cheapest).Mul(decimal.NewFromInt(100)).Float64()
	}

	return model.OptimizationResult{
		Selected:        &selected.Route,
		SelectedScore:   &selected,
		Alternatives:    alternatives,
		RoutesEvaluated: len(candidates),
		Elapsed:         time.Since(start),
		Confidence:      selected.Confidence,
		CostSavingsPct:  savingsPct,
		Reason:          "top-ranked by " + string(o.cfg.Strategy) + " policy",
	}, nil
}

// Learn feeds a realized outcome back into the per-route axis EMAs (§4.3
// step 6), bounded by PerformanceHistorySize observations tracked per route.
func (o *Optimizer) Learn(outcome model.RouteOutcome) {
	if !o.cfg.EnableLearning {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	la := o.learned[outcome.RouteID]
	reliabilitySample := 0.0
	if outcome.Success {
		reliabilitySample = 1.0
	}
	la.reliability = blend(la.reliability, reliabilitySample, o.cfg.LearningRate, la.observations)
	if !outcome.Amount.IsZero() {
		costSample, _ := outcome.RealizedFee.Div(outcome.Amount).Float64()
		la.cost = blend(la.cost, 1-costSample*10, o.cfg.LearningRate, la.observations)
	}
	speedSample := 1 - float64(outcome.RealizedDelivery.Minutes())/1440
	la.speed = blend(la.speed, speedSample, o.cfg.LearningRate, la.observations)
	complianceSample := 1.0
	if outcome.ComplianceFlagged {
		complianceSample = 0.0
	}
	la.compliance = blend(la.compliance, complianceSample, o.cfg.LearningRate, la.observations)
	la.observations++
	if la.observations > o.cfg.PerformanceHistorySize {
		la.observations = o.cfg.PerformanceHistorySize
	}
	o.learned[outcome.RouteID] = la
}

func blend(prev, sample, rate float64, observations int) float64 {
	if observations == 0 {
		return sample
	}
	return prev + rate*(sample-prev)
}

func (o *Optimizer) discover(ctx context.Context, intent model.PaymentIntent) ([]model.CandidateRoute, error) {
	var all []model.CandidateRoute
	kinds := []model.RouteKind{model.RouteDirect, model.RouteHub, model.RouteMultiHop}
	for _, kind := range kinds {
		if !o.cfg.EnabledRouteKinds[string(kind)] {
			continue
		}

		key := discoveryCacheKey(intent, kind)
		if cached, ok := o.candidatesFromCache(ctx, key); ok {
			all = append(all, cached...)
			continue
		}

		var (
			routes []model.CandidateRoute
			err    error
		)
		if o.discoverer != nil {
			routes, err = o.discoverer.Discover(ctx, intent, kind)
		} else {
			routes = stubDiscover(intent, kind)
		}
		if err != nil {
			return nil, err
		}
		o.cacheCandidates(ctx, key, routes)
		all = append(all, routes...)
	}
	return all, nil
}

// discoveryCacheKey keys cached discovery by corridor, amount and route
// kind — candidates carry fee estimates computed from the amount, so a
// candidate discovered for one amount is not reused for another.
func discoveryCacheKey(intent model.PaymentIntent, kind model.RouteKind) string {
	return "route_discovery:" + intent.SourceCurrency + ":" + intent.DestCurrency + ":" + intent.Amount.String() + ":" + string(kind)
}

func (o *Optimizer) candidatesFromCache(ctx context.Context, key string) ([]model.CandidateRoute, bool) {
	if o.cfg.CandidateCacheTTL <= 0 {
		return nil, false
	}
	raw, ok, err := o.candidates.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var routes []model.CandidateRoute
	if err := json.Unmarshal(raw, &routes); err != nil {
		return nil, false
	}
	return routes, true
}

func (o *Optimizer) cacheCandidates(ctx context.Context, key string, routes []model.CandidateRoute) {
	if o.cfg.CandidateCacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(routes)
	if err != nil {
		return
	}
	_ = o.candidates.Set(ctx, key, raw, o.cfg.CandidateCacheTTL)
}

// stubDiscover is the built-in placeholder discovery used when no
// Discoverer is wired, mirroring payment_optimizer.py's mock direct/hub
// routes pending real provider integration.
func stubDiscover(intent model.PaymentIntent, kind model.RouteKind) []model.CandidateRoute {
	switch kind {
	case model.RouteDirect:
		return []model.CandidateRoute{{
			ID:                "direct_" + intent.SourceCurrency + "_" + intent.DestCurrency,
			Kind:              model.RouteDirect,
			Providers:         []string{"direct_provider"},
			EstimatedFee:      intent.Amount.Mul(decimal.NewFromFloat(0.02)),
			EstimatedDelivery: 30 * time.Minute,
			SuccessRate:       0.98,
			ComplianceScore:   0.95,
		}}
	case model.RouteHub:
		var routes []model.CandidateRoute
		for _, hub := range []string{"USD", "EUR", "GBP"} {
			if hub == intent.SourceCurrency || hub == intent.DestCurrency {
				continue
			}
			routes = append(routes, model.CandidateRoute{
				ID:                "hub_" + intent.SourceCurrency + "_" + hub + "_" + intent.DestCurrency,
				Kind:              model.RouteHub,
				Providers:         []string{"hub_provider_" + hub},
				EstimatedFee:      intent.Amount.Mul(decimal.NewFromFloat(0.015)),
				EstimatedDelivery: 60 * time.Minute,
				SuccessRate:       0.96,
				ComplianceScore:   0.92,
				Metadata:          map[string]any{"hub_currency": hub},
			})
		}
		return routes
	default: // multi_hop: no bounded composition wired by default, disabled unless a Discoverer supplies one
		return nil
	}
}

func (o *Optimizer) filter(candidates []model.CandidateRoute, intent model.PaymentIntent) []model.CandidateRoute {
	var out []model.CandidateRoute
	for _, c := range candidates {
		if c.SuccessRate < o.cfg.MinSuccessRate {
			continue
		}
		if c.EstimatedDelivery > o.cfg.MaxDelivery {
			continue
		}
		if !intent.Amount.IsZero() {
			costPct, _ := c.EstimatedFee.Div(intent.Amount).Float64()
			if costPct > o.cfg.MaxCostPct {
				continue
			}
		}
		if hasExcludedProvider(c.Providers, o.cfg.ExcludedProviders) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasExcludedProvider(providers, excluded []string) bool {
	if len(excluded) == 0 {
		return false
	}
	excludedSet := make(map[string]struct{}, len(excluded))
	for _, p := range excluded {
		excludedSet[p] = struct{}{}
	}
	for _, p := range providers {
		if _, ok := excludedSet[p]; ok {
			return true
		}
	}
	return false
}

func (o *Optimizer) score(candidates []model.CandidateRoute, intent model.PaymentIntent) []model.RouteScore {
	o.mu.Lock()
	defer o.mu.Unlock()

	scores := make([]model.RouteScore, 0, len(candidates))
	for _, c := range candidates {
		costPct, _ := c.EstimatedFee.Div(nonZero(intent.Amount)).Float64()
		costScore := clamp01(1 - 10*costPct)
		speedScore := clamp01(1 - c.EstimatedDelivery.Minutes()/1440)
		reliabilityScore := c.SuccessRate
		complianceScore := c.ComplianceScore
		if intent.Amount.GreaterThan(decimal.NewFromFloat(o.cfg.HighValueThreshold)) {
			complianceScore *= 0.95
		}

		if o.cfg.EnableLearning {
			if la, ok := o.learned[c.ID]; ok && la.observations > 0 {
				costScore = (costScore + la.cost) / 2
				speedScore = (speedScore + la.speed) / 2
				reliabilityScore = (reliabilityScore + la.reliability) / 2
				complianceScore = (complianceScore + la.compliance) / 2
			}
		}

		confidence := 1.0
		if la, ok := o.learned[c.ID]; ok {
			confidence = minFloat(1.0, 0.5+float64(la.observations)/float64(o.cfg.PerformanceHistorySize))
		} else {
			confidence = 0.5
		}

		scores = append(scores, model.RouteScore{
			Route:            c,
			CostScore:        costScore,
			SpeedScore:       speedScore,
			ReliabilityScore: reliabilityScore,
			ComplianceScore:  complianceScore,
			Confidence:       confidence,
		})
	}
	return scores
}

// selectRoute promotes the highest-scoring route containing a preferred
// provider, if any exists in the scored set (§4.3 step 5).
func (o *Optimizer) selectRoute(scores []model.RouteScore) model.RouteScore {
	if len(o.cfg.PreferredProviders) == 0 {
		return scores[0]
	}
	preferred := make(map[string]struct{}, len(o.cfg.PreferredProviders))
	for _, p := range o.cfg.PreferredProviders {
		preferred[p] = struct{}{}
	}
	for _, s := range scores {
		for _, p := range s.Route.Providers {
			if _, ok := preferred[p]; ok {
				return s
			}
		}
	}
	return scores[0]
}

func nonZero(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.NewFromInt(1)
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
