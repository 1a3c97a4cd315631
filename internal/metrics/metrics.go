package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundsrail_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fundsrail_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundsrail_transfers_total",
			Help: "Transfer requests by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	ResumptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundsrail_resumptions_total",
			Help: "Webhook resumptions by event and whether they changed state",
		},
		[]string{"event", "applied"},
	)

	LockFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundsrail_lock_failures_total",
			Help: "Lock acquisitions that gave up after retries",
		},
		[]string{"operation"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundsrail_settlements_total",
			Help: "Blockchain settlements by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	FundingJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundsrail_funding_jobs_total",
			Help: "Funding jobs handled by the executor",
		},
		[]string{"outcome"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTransfer(transferType, outcome string) {
	TransfersTotal.WithLabelValues(transferType, outcome).Inc()
}

func RecordResumption(event string, applied bool) {
	label := "false"
	if applied {
		label = "true"
	}
	ResumptionsTotal.WithLabelValues(event, label).Inc()
}

func RecordLockFailure(operation string) {
	LockFailuresTotal.WithLabelValues(operation).Inc()
}

func RecordSettlement(phase, outcome string) {
	SettlementsTotal.WithLabelValues(phase, outcome).Inc()
}

func RecordFundingJob(outcome string) {
	FundingJobsTotal.WithLabelValues(outcome).Inc()
}
