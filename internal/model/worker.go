package model

import "time"

// WorkerStatus is the runtime status a Supervisor assigns a worker (§3).
type WorkerStatus string

const (
	WorkerIdle    WorkerStatus = "idle"
	WorkerBusy    WorkerStatus = "busy"
	WorkerError   WorkerStatus = "error"
	WorkerOffline WorkerStatus = "offline"
)

// BreakerState mirrors the three circuit-breaker states from §4.2.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// WorkerDescriptor is a static registry entry (§4.1).
type WorkerDescriptor struct {
	Capability         string
	Version            string
	RequiredCapability []string
	ConfigSchema       map[string]any
}

// WorkerState is the Supervisor-owned runtime view of one worker instance.
type WorkerState struct {
	ID                 string
	Capability         string
	Status             WorkerStatus
	InFlight           int
	SuccessRateEMA     float64
	AvgProcessingEMA   time.Duration
	ConsecutiveFailure int
	Breaker            BreakerState
	BreakerOpenedAt    time.Time
}
