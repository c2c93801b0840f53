// Package adapter defines the external collaborator contracts (C9): the
// mobile-money and blockchain settlement rails the pipeline's last two
// stages drive, plus idempotent in-memory implementations suitable as the
// default wiring and as deterministic fakes in tests. A production
// deployment supplies its own MMO/Settlement implementation behind the
// same interfaces — this package never reaches out over the network.
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nimbus-payments/orchestration-core/internal/cache"
	"github.com/shopspring/decimal"
)

// MMORequest is the input to a mobile-money disbursement.
type MMORequest struct {
	IdempotencyKey string
	RecipientPhone string
	RecipientName  string
	Amount         decimal.Decimal
	Currency       string
	Provider       string
}

// MMOResponse is the outcome of a disbursement attempt.
type MMOResponse struct {
	Accepted       bool
	ExternalRef    string
	Message        string
	Retriable      bool
}

// MMOStatus is the lifecycle state of a previously submitted disbursement.
type MMOStatus string

const (
	MMOStatusPending   MMOStatus = "pending"
	MMOStatusCompleted MMOStatus = "completed"
	MMOStatusFailed    MMOStatus = "failed"
)

// MMOStatusResponse answers a status lookup for a prior disbursement.
type MMOStatusResponse struct {
	ExternalRef string
	Status      MMOStatus
}

// MMOBalance is a rail's available float for a given currency.
type MMOBalance struct {
	Currency  string
	Available decimal.Decimal
}

// MMOLimits are the per-transaction and daily caps a rail enforces for a
// currency — consulted by a deployment before routing a disbursement large
// enough to risk a rail-side rejection.
type MMOLimits struct {
	Currency          string
	MaxPerTransaction decimal.Decimal
	MaxDaily          decimal.Decimal
}

// MMO is the mobile-money execution rail (§4.9). The wire protocol used to
// reach a real provider is out of scope — this is the Go-level seam a
// deployment implements against.
type MMO interface {
	Disburse(ctx context.Context, req MMORequest) (MMOResponse, error)

	// Status reports the current lifecycle state of a previously disbursed
	// external reference.
	Status(ctx context.Context, externalRef string) (MMOStatusResponse, error)

	// Balance reports the rail's available float for a currency.
	Balance(ctx context.Context, currency string) (MMOBalance, error)

	// SupportedCountries lists the ISO 3166-1 alpha-2 countries this rail
	// can disburse into.
	SupportedCountries(ctx context.Context) ([]string, error)

	// Limits reports the per-transaction and daily caps for a currency.
	Limits(ctx context.Context, currency string) (MMOLimits, error)
}

// SettlementRequest is the input to a blockchain settlement.
type SettlementRequest struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       string
	RouteID        string
}

// SettlementResponse is the outcome of a settlement attempt.
type SettlementResponse struct {
	Confirmed       bool
	TransactionHash string
	Message         string
	Retriable       bool
}

// SettlementStatus is the lifecycle state of a previously submitted
// settlement.
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "pending"
	SettlementStatusConfirmed SettlementStatus = "confirmed"
	SettlementStatusFailed    SettlementStatus = "failed"
)

// SettlementStatusResponse answers a status lookup for a prior settlement.
type SettlementStatusResponse struct {
	TransactionHash string
	Status          SettlementStatus
}

// SettlementBalance is the settlement rail's available float for a currency.
type SettlementBalance struct {
	Currency  string
	Available decimal.Decimal
}

// Settlement is the blockchain settlement rail (§4.9). The wire protocol
// used to reach a real chain/provider is out of scope — this is the
// Go-level seam a deployment implements against.
type Settlement interface {
	Settle(ctx context.Context, req SettlementRequest) (SettlementResponse, error)

	// BatchSettle submits several settlements together, returning one
	// response per request in the same order.
	BatchSettle(ctx context.Context, reqs []SettlementRequest) ([]SettlementResponse, error)

	// Status reports the current lifecycle state of a previously submitted
	// settlement transaction.
	Status(ctx context.Context, transactionHash string) (SettlementStatusResponse, error)

	// Balance reports the rail's available float for a currency.
	Balance(ctx context.Context, currency string) (SettlementBalance, error)
}

// idempotencyTTL bounds how long a dedup entry is honored — long enough to
// absorb a stage's retry envelope, short enough not to leak forever.
const idempotencyTTL = 24 * time.Hour

// InMemoryMMO is a deterministic, idempotent mock MMO adapter. Repeated
// calls with the same IdempotencyKey return the original response rather
// than re-executing, mirroring the at-most-once guarantee the real rail is
// expected to provide (§3, §7). The dedup store sits behind cache.Cache so
// a deployment can share it across replicas with cache.NewRedis instead of
// the in-memory default.
type InMemoryMMO struct {
	seen cache.Cache
	fail func(MMORequest) (MMOResponse, bool) // returns (forced response, ok)
}

// NewInMemoryMMO creates a mock MMO adapter. fail, if non-nil, lets a test
// force a specific outcome for a request before the default accept path runs.
func NewInMemoryMMO(fail func(MMORequest) (MMOResponse, bool)) *InMemoryMMO {
	return &InMemoryMMO{seen: cache.NewInMemory(), fail: fail}
}

// SetCache points the idempotency dedup store at a shared cache.Cache.
func (m *InMemoryMMO) SetCache(c cache.Cache) {
	if c == nil {
		c = cache.NewInMemory()
	}
	m.seen = c
}

// Disburse implements MMO.
func (m *InMemoryMMO) Disburse(ctx context.Context, req MMORequest) (MMOResponse, error) {
	if resp, ok := getCached[MMOResponse](ctx, m.seen, req.IdempotencyKey); ok {
		return resp, nil
	}

	if m.fail != nil {
		if resp, forced := m.fail(req); forced {
			setCached(ctx, m.seen, req.IdempotencyKey, resp)
			return resp, nil
		}
	}

	resp := MMOResponse{Accepted: true, ExternalRef: "mmo-" + req.IdempotencyKey, Message: "disbursed"}
	setCached(ctx, m.seen, req.IdempotencyKey, resp)
	return resp, nil
}

// Status implements MMO with a fixed "completed" answer — there is no real
// rail behind this adapter for a status poll to diverge against.
func (m *InMemoryMMO) Status(ctx context.Context, externalRef string) (MMOStatusResponse, error) {
	return MMOStatusResponse{ExternalRef: externalRef, Status: MMOStatusCompleted}, nil
}

// Balance implements MMO with an arbitrary large float, sufficient for any
// test or local-run disbursement.
func (m *InMemoryMMO) Balance(ctx context.Context, currency string) (MMOBalance, error) {
	return MMOBalance{Currency: currency, Available: decimal.NewFromInt(1_000_000)}, nil
}

// SupportedCountries implements MMO with a small fixed set covering the
// corridors exercised by this repo's tests and sample workflow.
func (m *InMemoryMMO) SupportedCountries(ctx context.Context) ([]string, error) {
	return []string{"KE", "NG", "UG", "GH", "TZ"}, nil
}

// Limits implements MMO with generous fixed caps.
func (m *InMemoryMMO) Limits(ctx context.Context, currency string) (MMOLimits, error) {
	return MMOLimits{
		Currency:          currency,
		MaxPerTransaction: decimal.NewFromInt(50_000),
		MaxDaily:          decimal.NewFromInt(250_000),
	}, nil
}

// InMemorySettlement is the settlement counterpart of InMemoryMMO.
type InMemorySettlement struct {
	seen cache.Cache
	fail func(SettlementRequest) (SettlementResponse, bool)
}

// NewInMemorySettlement creates a mock settlement adapter.
func NewInMemorySettlement(fail func(SettlementRequest) (SettlementResponse, bool)) *InMemorySettlement {
	return &InMemorySettlement{seen: cache.NewInMemory(), fail: fail}
}

// SetCache points the idempotency dedup store at a shared cache.Cache.
func (s *InMemorySettlement) SetCache(c cache.Cache) {
	if c == nil {
		c = cache.NewInMemory()
	}
	s.seen = c
}

// Settle implements Settlement.
func (s *InMemorySettlement) Settle(ctx context.Context, req SettlementRequest) (SettlementResponse, error) {
	if resp, ok := getCached[SettlementResponse](ctx, s.seen, req.IdempotencyKey); ok {
		return resp, nil
	}

	if s.fail != nil {
		if resp, forced := s.fail(req); forced {
			setCached(ctx, s.seen, req.IdempotencyKey, resp)
			return resp, nil
		}
	}

	resp := SettlementResponse{Confirmed: true, TransactionHash: "0x" + req.IdempotencyKey, Message: "settled"}
	setCached(ctx, s.seen, req.IdempotencyKey, resp)
	return resp, nil
}

// BatchSettle implements Settlement by running Settle once per request —
// there is no batching efficiency to gain over an in-memory fake, only the
// contract shape a real batching rail would fill in.
func (s *InMemorySettlement) BatchSettle(ctx context.Context, reqs []SettlementRequest) ([]SettlementResponse, error) {
	out := make([]SettlementResponse, len(reqs))
	for i, req := range reqs {
		resp, err := s.Settle(ctx, req)
		if err != nil {
			return nil, err
		}
		out[i] = resp
	}
	return out, nil
}

// Status implements Settlement with a fixed "confirmed" answer — there is
// no real chain behind this adapter for a status poll to diverge against.
func (s *InMemorySettlement) Status(ctx context.Context, transactionHash string) (SettlementStatusResponse, error) {
	return SettlementStatusResponse{TransactionHash: transactionHash, Status: SettlementStatusConfirmed}, nil
}

// Balance implements Settlement with an arbitrary large float, sufficient
// for any test or local-run settlement.
func (s *InMemorySettlement) Balance(ctx context.Context, currency string) (SettlementBalance, error) {
	return SettlementBalance{Currency: currency, Available: decimal.NewFromInt(1_000_000)}, nil
}

func getCached[T any](ctx context.Context, c cache.Cache, key string) (T, bool) {
	var zero T
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false
	}
	return v, true
}

func setCached[T any](ctx context.Context, c cache.Cache, key string, v T) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, raw, idempotencyTTL)
}
