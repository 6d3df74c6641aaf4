package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// MustRegister installs the job collectors into the default Prometheus
// registry. Every binary that serves /metrics calls it once at startup;
// repeated calls are no-ops.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			jobsFinishedTotal,
			jobRowsProcessedTotal,
			jobDurationSeconds,
			cacheRequestsTotal,
		)
	})
}

var jobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "import_export_jobs_finished_total",
		Help: "Total number of finished job runs, labeled by kind and terminal status.",
	},
	[]string{"kind", "status"}, // kind: 'export'|'import', status: 'EXPORTED', 'CANCELLED', ...
)

var jobRowsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "import_export_rows_processed_total",
		Help: "Total number of rows processed across job runs, labeled by kind.",
	},
	[]string{"kind"},
)

var jobDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "import_export_job_duration_seconds",
		Help:    "Wall time of a single job run.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	},
	[]string{"kind"},
)

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "import_export_progress_cache_requests_total",
		Help: "Progress cache lookups, labeled by result.",
	},
	[]string{"result"}, // 'hit' | 'miss'
)

func IncJobFinished(kind, status string) {
	jobsFinishedTotal.WithLabelValues(norm(kind), strings.ToUpper(strings.TrimSpace(status))).Inc()
}

func AddRowsProcessed(kind string, n int) {
	jobRowsProcessedTotal.WithLabelValues(norm(kind)).Add(float64(n))
}

func ObserveJobDuration(kind string, d time.Duration) {
	jobDurationSeconds.WithLabelValues(norm(kind)).Observe(d.Seconds())
}

func IncCacheRequest(result string) {
	cacheRequestsTotal.WithLabelValues(norm(result)).Inc()
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
