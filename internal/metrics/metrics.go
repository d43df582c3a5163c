// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesStoredTotal      *prometheus.CounterVec
	pagesDuplicateTotal   *prometheus.CounterVec
	pagesRejectedTotal    *prometheus.CounterVec
	fetchJobsTotal        *prometheus.CounterVec
	booksCompletedTotal   prometheus.Counter
	recordsExtractedTotal prometheus.Counter
	recordsFailedTotal    prometheus.Counter
	partiesCreatedTotal   prometheus.Counter
	requeuesTotal         *prometheus.CounterVec
	deadLettersTotal      *prometheus.CounterVec
	extractionSeconds     prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_stored_total",
				Help: "Total number of gazette pages stored, labeled by category.",
			},
			[]string{"category"},
		)

		pagesDuplicateTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_duplicate_total",
				Help: "Total number of redelivered pages ignored by the store, labeled by category.",
			},
			[]string{"category"},
		)

		pagesRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_rejected_total",
				Help: "Total number of pages rejected for unexpected layout, labeled by category.",
			},
			[]string{"category"},
		)

		fetchJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_jobs_total",
				Help: "Total number of fetch jobs dispatched, labeled by category.",
			},
			[]string{"category"},
		)

		booksCompletedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_books_completed_total",
				Help: "Total number of gazette editions fully assembled and extracted.",
			},
		)

		recordsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_records_extracted_total",
				Help: "Total number of case records carved out of reassembled books.",
			},
		)

		recordsFailedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_records_failed_total",
				Help: "Total number of carved records that failed to persist.",
			},
		)

		partiesCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_parties_created_total",
				Help: "Total number of party entities created on first sighting.",
			},
		)

		requeuesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_requeues_total",
				Help: "Total number of deliveries requeued for retry, labeled by topic.",
			},
			[]string{"topic"},
		)

		deadLettersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_dead_letters_total",
				Help: "Total number of deliveries routed to a dead-letter topic.",
			},
			[]string{"topic"},
		)

		extractionSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_extraction_duration_seconds",
				Help:    "Histogram of whole-book extraction durations.",
				Buckets: []float64{0.5, 1, 5, 15, 60, 180, 600},
			},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// PageStored increments the stored-page counter.
func PageStored(category string) {
	Init()
	pagesStoredTotal.WithLabelValues(category).Inc()
}

// PageDuplicate increments the ignored-duplicate counter.
func PageDuplicate(category string) {
	Init()
	pagesDuplicateTotal.WithLabelValues(category).Inc()
}

// PageRejected increments the layout-rejection counter.
func PageRejected(category string) {
	Init()
	pagesRejectedTotal.WithLabelValues(category).Inc()
}

// FetchJobDispatched increments the dispatched-job counter.
func FetchJobDispatched(category string) {
	Init()
	fetchJobsTotal.WithLabelValues(category).Inc()
}

// BookCompleted increments the completed-book counter.
func BookCompleted() {
	Init()
	booksCompletedTotal.Inc()
}

// RecordExtracted increments the extracted-record counter.
func RecordExtracted() {
	Init()
	recordsExtractedTotal.Inc()
}

// RecordFailed increments the failed-record counter.
func RecordFailed() {
	Init()
	recordsFailedTotal.Inc()
}

// PartyCreated increments the new-party counter.
func PartyCreated() {
	Init()
	partiesCreatedTotal.Inc()
}

// Requeued increments the requeue counter for a topic.
func Requeued(topic string) {
	Init()
	requeuesTotal.WithLabelValues(topic).Inc()
}

// DeadLettered increments the dead-letter counter for a topic.
func DeadLettered(topic string) {
	Init()
	deadLettersTotal.WithLabelValues(topic).Inc()
}

// ObserveExtraction records a whole-book extraction duration.
func ObserveExtraction(d time.Duration) {
	Init()
	extractionSeconds.Observe(d.Seconds())
}
