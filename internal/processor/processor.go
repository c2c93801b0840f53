// Package processor holds the rail-backed default workers for the
// payment_service, liquidity and exchange_rate capabilities: a
// configurable simulated rail generalized from approval/decline/error
// outcomes to the core's typed success/transient/permanent outcomes.
package processor

import "github.com/nimbus-payments/orchestration-core/internal/worker"

var _ worker.Worker = (*RailWorker)(nil)
