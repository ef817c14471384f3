package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/sqlflow-dev/sqlflow/internal/logger"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alert is one raised observability event.
type Alert struct {
	Kind        string    `json:"kind"`
	Severity    Severity  `json:"severity"`
	Component   string    `json:"component"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// AlerterConfig sets the thresholds for the built-in alerts.
type AlerterConfig struct {
	// SlowStepThreshold triggers slow_execution when a step exceeds it.
	SlowStepThreshold time.Duration
	// FailureRateThreshold triggers failure_rate_critical when the
	// overall failure rate exceeds it (0..1).
	FailureRateThreshold float64
	// MinCallsForRate suppresses the failure-rate alert until enough
	// steps have completed to make the rate meaningful.
	MinCallsForRate int64
}

func DefaultAlerterConfig() AlerterConfig {
	return AlerterConfig{
		SlowStepThreshold:    5 * time.Minute,
		FailureRateThreshold: 0.5,
		MinCallsForRate:      2,
	}
}

// Alerter raises threshold-based alerts from step observations. Raised
// alerts are logged and retained for the run record.
type Alerter struct {
	cfg      AlerterConfig
	registry *Registry

	mu     sync.Mutex
	raised []Alert
}

func NewAlerter(cfg AlerterConfig, registry *Registry) *Alerter {
	return &Alerter{cfg: cfg, registry: registry}
}

// CheckStep inspects one finished step for threshold violations.
func (a *Alerter) CheckStep(ctx context.Context, stepID string, duration time.Duration) {
	if a.cfg.SlowStepThreshold > 0 && duration > a.cfg.SlowStepThreshold {
		a.raise(ctx, Alert{
			Kind:      "slow_execution",
			Severity:  SeverityWarning,
			Component: stepID,
			Message:   "step duration exceeded the slow threshold",
			Timestamp: time.Now(),
			Suggestions: []string{
				"check upstream data volume for unexpected growth",
				"consider an incremental sync_mode for large loads",
			},
		})
	}

	calls, failures := a.registry.Totals()
	if calls >= a.cfg.MinCallsForRate && a.cfg.FailureRateThreshold > 0 {
		rate := float64(failures) / float64(calls)
		if rate > a.cfg.FailureRateThreshold {
			a.raise(ctx, Alert{
				Kind:      "failure_rate_critical",
				Severity:  SeverityCritical,
				Component: "executor",
				Message:   "overall step failure rate exceeded threshold",
				Timestamp: time.Now(),
				Suggestions: []string{
					"inspect the first failing step's error context",
					"verify connector credentials and endpoints",
				},
			})
		}
	}
}

func (a *Alerter) raise(ctx context.Context, alert Alert) {
	a.mu.Lock()
	a.raised = append(a.raised, alert)
	a.mu.Unlock()

	logger.Warn(ctx, "Alert raised",
		"kind", alert.Kind,
		"severity", string(alert.Severity),
		"component", alert.Component,
		"message", alert.Message,
	)
}

// Alerts returns a copy of every raised alert.
func (a *Alerter) Alerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Alert, len(a.raised))
	copy(out, a.raised)
	return out
}
