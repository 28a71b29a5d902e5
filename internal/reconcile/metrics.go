package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	passes       prometheus.Counter
	passDuration prometheus.Histogram
	writes       *prometheus.CounterVec
	races        prometheus.Counter
	dropped      prometheus.Counter
}

// newMetrics registers the reconciler metrics on reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		passes: f.NewCounter(prometheus.CounterOpts{
			Name: "unitcore_reconcile_passes_total",
			Help: "Reconciliation passes run after external status record changes",
		}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "unitcore_reconcile_pass_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "unitcore_status_record_writes_total",
			Help: "Status record file operations by kind",
		}, []string{"op"}),
		races: f.NewCounter(prometheus.CounterOpts{
			Name: "unitcore_status_record_races_total",
			Help: "Status record writes abandoned because the file changed on disk",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "unitcore_status_records_dropped_total",
			Help: "Status records skipped because they were malformed or their jar was missing",
		}),
	}
}
