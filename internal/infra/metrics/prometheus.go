package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stillframe_jobs_processed_total",
		Help: "Total number of extraction jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stillframe_job_processing_duration_seconds",
		Help:    "Duration of the photo extraction pipeline",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"stage"})

	PhotosExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stillframe_photos_extracted_total",
		Help: "Total number of photos extracted across all jobs",
	})

	CandidatesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stillframe_candidates_rejected_total",
		Help: "Total number of candidate frames rejected during validation, by reason",
	}, []string{"reason"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stillframe_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stillframe_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
