package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/juliehq/julie-entrypoint/pkg/bootstrap"
	"github.com/juliehq/julie-entrypoint/pkg/metrics"
)

func init() {
	metrics.RegisterBootstrapMetricsConstructor(NewBootstrapMetrics)
}

// bootstrapMetrics is the Prometheus implementation of
// metrics.BootstrapMetrics.
type bootstrapMetrics struct {
	stageDuration  *prometheus.GaugeVec
	stageResult    *prometheus.GaugeVec
	gateAttempts   *prometheus.CounterVec
	migrations     prometheus.Gauge
	assets         *prometheus.GaugeVec
	lastCompletion prometheus.Gauge
}

// NewBootstrapMetrics creates a Prometheus-backed BootstrapMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBootstrapMetrics() metrics.BootstrapMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	// Gauges rather than histograms: the textfile holds one run.
	return &bootstrapMetrics{
		stageDuration: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "julie_bootstrap_stage_duration_seconds",
				Help: "Wall time of each bootstrap stage in the last run",
			},
			[]string{"stage"},
		),
		stageResult: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "julie_bootstrap_stage_result",
				Help: "1 for the result each bootstrap stage finished with",
			},
			[]string{"stage", "result"}, // "success", "soft_failure", "hard_failure"
		),
		gateAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "julie_bootstrap_gate_attempts_total",
				Help: "Readiness probes by outcome",
			},
			[]string{"outcome"}, // "ready", "not_ready"
		),
		migrations: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "julie_bootstrap_migrations_applied",
				Help: "Migrations applied by the last run",
			},
		),
		assets: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "julie_bootstrap_assets",
				Help: "Static files handled by the last run",
			},
			[]string{"action"}, // "copied", "skipped", "removed"
		),
		lastCompletion: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "julie_bootstrap_last_stage_timestamp_seconds",
				Help: "Unix time the most recent stage finished",
			},
		),
	}
}

func (m *bootstrapMetrics) StageFinished(stage string, kind bootstrap.Kind, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Set(duration.Seconds())
	m.stageResult.WithLabelValues(stage, kind.String()).Set(1)
	m.lastCompletion.SetToCurrentTime()
}

func (m *bootstrapMetrics) GateAttempt(ok bool) {
	outcome := "not_ready"
	if ok {
		outcome = "ready"
	}
	m.gateAttempts.WithLabelValues(outcome).Inc()
}

func (m *bootstrapMetrics) MigrationsApplied(n int) {
	m.migrations.Set(float64(n))
}

func (m *bootstrapMetrics) AssetsMaterialized(copied, skipped, removed int) {
	m.assets.WithLabelValues("copied").Set(float64(copied))
	m.assets.WithLabelValues("skipped").Set(float64(skipped))
	m.assets.WithLabelValues("removed").Set(float64(removed))
}
