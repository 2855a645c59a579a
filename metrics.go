package otdag

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var MergeCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "otdag",
	Subsystem: "merge",
	Name:      "merges",
}, []string{"result"})

var MergeRetries = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "otdag",
	Subsystem: "merge",
	Name:      "retries",
})

var MergeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "otdag",
	Subsystem: "merge",
	Name:      "duration_seconds",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
})

var TransformConflicts = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "otdag",
	Subsystem: "merge",
	Name:      "transform_conflicts",
})

var CheckoutCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "otdag",
	Subsystem: "checkout",
	Name:      "checkouts",
}, []string{"source"})

// RegisterMetrics registers the package metrics, tolerating repeated calls.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{MergeCount, MergeRetries, MergeDuration, TransformConflicts, CheckoutCount} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
