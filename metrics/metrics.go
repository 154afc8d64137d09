package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiep",
			Name:      "uploads_total",
			Help:      "Image uploads by result (ok, security, missing_file, transfer, size_limit, type_not_allowed, storage)",
		},
		[]string{"result"},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiep",
			Name:      "checkout_submissions_total",
			Help:      "Checkout submissions by result (placed, rejected, error)",
		},
		[]string{"result"},
	)

	cleanupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiep",
			Name:      "cleanup_runs_total",
			Help:      "Orphan cleanup runs by result (ok, already_running, error)",
		},
		[]string{"result"},
	)

	cleanupDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aiep",
			Name:      "cleanup_deleted_images_total",
			Help:      "Images removed by the orphan cleanup",
		},
	)

	cleanupCandidateErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiep",
			Name:      "cleanup_candidate_errors_total",
			Help:      "Cleanup candidates skipped because of an error, by stage (reference, delete)",
		},
		[]string{"stage"},
	)
)

var registerOnce sync.Once

// Init registers collectors. It is safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(uploads, checkouts, cleanupRuns, cleanupDeleted, cleanupCandidateErrors)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncUpload(result string)     { uploads.WithLabelValues(result).Inc() }
func IncCheckout(result string)   { checkouts.WithLabelValues(result).Inc() }
func IncCleanupRun(result string) { cleanupRuns.WithLabelValues(result).Inc() }
func AddCleanupDeleted(n int)     { cleanupDeleted.Add(float64(n)) }

// IncCleanupCandidateError counts a candidate skipped at stage "reference" or "delete".
func IncCleanupCandidateError(stage string) { cleanupCandidateErrors.WithLabelValues(stage).Inc() }
