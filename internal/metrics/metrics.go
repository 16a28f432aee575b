package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrtrack_scans_recorded_total",
			Help: "Total number of scan events recorded",
		},
		[]string{"device_type"},
	)

	InvalidCodeLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrtrack_invalid_code_lookups_total",
			Help: "Scan or verify calls against unknown or inactive codes",
		},
		[]string{"operation", "reason"},
	)

	ScanCounterDrift = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrtrack_scan_counter_drift_total",
			Help: "Scans stored whose counter increment failed",
		},
	)

	CountersReconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrtrack_counters_reconciled_total",
			Help: "QR codes whose scan count was corrected by reconciliation",
		},
	)

	QRCodesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrtrack_qrcodes_issued_total",
			Help: "Total number of QR codes issued",
		},
	)

	IssuanceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrtrack_issuance_failures_total",
			Help: "QR issuance failures by stage",
		},
		[]string{"stage"}, // "encode", "image", "record", "compensate"
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrtrack_resolve_cache_lookups_total",
			Help: "Resolve cache lookups by result",
		},
		[]string{"result"}, // "fresh", "stale", "miss"
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrtrack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qrtrack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrtrack_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)
