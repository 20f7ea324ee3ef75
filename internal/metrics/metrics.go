package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for processing counters
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	billingCyclesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberbill_billing_cycles_processed_total",
		Help: "Billing cycle processing attempts by outcome",
	}, []string{"result"})

	renewalsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberbill_renewals_processed_total",
		Help: "Renewal processing attempts by outcome",
	}, []string{"result"})

	remindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memberbill_reminders_sent_total",
		Help: "Renewal reminders sent",
	})

	batchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberbill_batch_runs_total",
		Help: "Batch runs by target kind and dry run flag",
	}, []string{"kind", "dry_run"})

	batchRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memberbill_batch_run_duration_seconds",
		Help:    "End to end batch run duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"kind"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memberbill_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memberbill_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RecordBillingCycleProcessed counts one billing cycle processing attempt
func RecordBillingCycleProcessed(result string) {
	billingCyclesProcessed.WithLabelValues(result).Inc()
}

// RecordRenewalProcessed counts one renewal processing attempt
func RecordRenewalProcessed(result string) {
	renewalsProcessed.WithLabelValues(result).Inc()
}

// RecordReminderSent counts one delivered renewal reminder
func RecordReminderSent() {
	remindersSent.Inc()
}

// RecordBatchRun counts a finished batch run and observes its duration
func RecordBatchRun(kind string, dryRun bool, duration time.Duration) {
	batchRuns.WithLabelValues(kind, strconv.FormatBool(dryRun)).Inc()
	batchRunDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Handler serves the scrape endpoint for the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per route. Unmatched routes
// share one label so cardinality stays bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
