package domain

import "time"

// HealthState classifies an exchange based on recent fetch outcomes.
type HealthState string

const (
	HealthActive   HealthState = "ACTIVE"
	HealthDegraded HealthState = "DEGRADED"
	HealthDown     HealthState = "DOWN"
)

// ExchangeHealth tracks per-exchange fetch success/failure history. It is
// mutated only by the monitor after each fetch attempt and persists across
// cycles.
type ExchangeHealth struct {
	Exchange            string        `json:"exchange"`
	State               HealthState   `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	LastLatency         time.Duration `json:"last_latency"`
}
