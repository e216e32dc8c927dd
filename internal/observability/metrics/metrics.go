// Package metrics registers the prometheus instruments for the token
// lifecycle. Instruments are created once on the default registry so tests
// and the fx graph can share them.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess        = "success"
	ResultRetryExhausted = "retry_exhausted"
	ResultReauthRequired = "reauth_required"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type TokenMetrics struct {
	RefreshAttempts  *prometheus.CounterVec
	RefreshOutcomes  *prometheus.CounterVec
	RefreshRetries   prometheus.Counter
	SchedulerRuns    prometheus.Counter
	SchedulerErrors  prometheus.Counter
	MultiActiveSeen  prometheus.Counter
	ActiveCredential prometheus.Gauge
}

var (
	tokenOnce    sync.Once
	tokenMetrics *TokenMetrics
)

// Token returns the process-wide token lifecycle metrics.
func Token() *TokenMetrics {
	tokenOnce.Do(func() {
		tokenMetrics = &TokenMetrics{
			RefreshAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "adsboard_token_refresh_attempts_total",
				Help: "Provider token refresh HTTP attempts by status class.",
			}, []string{"status"}),
			RefreshOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "adsboard_token_refresh_outcomes_total",
				Help: "Completed refresh operations by result.",
			}, []string{"result"}),
			RefreshRetries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "adsboard_token_refresh_retries_total",
				Help: "Backoff delays applied before a refresh attempt.",
			}),
			SchedulerRuns: promauto.NewCounter(prometheus.CounterOpts{
				Name: "adsboard_scheduler_runs_total",
				Help: "Expiry scheduler scan iterations.",
			}),
			SchedulerErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "adsboard_scheduler_errors_total",
				Help: "Expiry scheduler scans that ended with an error.",
			}),
			MultiActiveSeen: promauto.NewCounter(prometheus.CounterOpts{
				Name: "adsboard_credential_multi_active_total",
				Help: "Observations of more than one active credential row.",
			}),
			ActiveCredential: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "adsboard_credential_active",
				Help: "1 when an active credential exists, 0 otherwise.",
			}),
		}
	})
	return tokenMetrics
}
