package metrics

import (
	"time"

	"github.com/juliehq/julie-entrypoint/pkg/bootstrap"
)

// BootstrapMetrics observes every stage of a bootstrap run. It satisfies
// the observer interfaces of the driver, the gate, the schema stage and
// the asset stage.
type BootstrapMetrics interface {
	StageFinished(stage string, kind bootstrap.Kind, duration time.Duration)
	GateAttempt(ok bool)
	MigrationsApplied(n int)
	AssetsMaterialized(copied, skipped, removed int)
}

// NewBootstrapMetrics creates a Prometheus-backed BootstrapMetrics.
//
// Returns nil if metrics are not enabled or the prometheus package was
// not linked in.
func NewBootstrapMetrics() BootstrapMetrics {
	if !IsEnabled() || newPrometheusBootstrapMetrics == nil {
		return nil
	}
	return newPrometheusBootstrapMetrics()
}

// newPrometheusBootstrapMetrics is set by pkg/metrics/prometheus, which
// imports this package.
var newPrometheusBootstrapMetrics func() BootstrapMetrics

// RegisterBootstrapMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterBootstrapMetricsConstructor(constructor func() BootstrapMetrics) {
	newPrometheusBootstrapMetrics = constructor
}
