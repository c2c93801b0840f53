package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RouteKind is the shape of a candidate payment path (§4.3 step 1).
type RouteKind string

const (
	RouteDirect   RouteKind = "direct"
	RouteHub      RouteKind = "hub"
	RouteMultiHop RouteKind = "multi_hop"
)

// CandidateRoute is one path a payment could take between two currencies.
type CandidateRoute struct {
	ID                string
	Kind              RouteKind
	Providers         []string
	EstimatedFee      decimal.Decimal
	EstimatedDelivery time.Duration
	SuccessRate       float64 // 0..1
	ComplianceScore   float64 // 0..1
	Metadata          map[string]any
}

// RouteScore is the per-axis and combined score for one candidate (§3).
type RouteScore struct {
	Route             CandidateRoute
	CostScore         float64
	SpeedScore        float64
	ReliabilityScore  float64
	ComplianceScore   float64
	TotalScore        float64
	Rank              int
	Confidence        float64
}

// OptimizationResult is the Route Optimizer's public output (§4.3).
type OptimizationResult struct {
	Selected        *CandidateRoute
	SelectedScore   *RouteScore
	Alternatives    []RouteScore
	RoutesEvaluated int
	Elapsed         time.Duration
	Confidence      float64
	CostSavingsPct  float64
	Reason          string
}

// RouteOutcome is fed back into the optimizer's learning step (§4.3.6):
// the realized outcome of a route that was previously selected.
type RouteOutcome struct {
	RouteID           string
	Success           bool
	RealizedFee       decimal.Decimal
	RealizedDelivery  time.Duration
	Amount            decimal.Decimal
	ComplianceFlagged bool // true if settlement triggered a post-hoc compliance review
}
