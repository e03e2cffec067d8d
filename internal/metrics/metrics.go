package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook boundary metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dossier_ingest_events_total",
			Help: "Total number of webhook events received, by outcome",
		},
		[]string{"outcome"},
	)

	EventBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dossier_ingest_event_bytes_total",
			Help: "Total bytes of webhook payloads received",
		},
	)

	// Delivery queue metrics
	PublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dossier_ingest_publish_retries_total",
			Help: "Total number of transport-level publish retries",
		},
	)

	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dossier_ingest_publish_failures_total",
			Help: "Total number of publishes that exhausted all retries",
		},
	)

	// Dispatcher metrics
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dossier_ingest_status_transitions_total",
			Help: "Total number of message status transitions",
		},
		[]string{"status"},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dossier_ingest_processing_duration_seconds",
			Help:    "Duration of message processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Orchestrator metrics
	ChunksUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dossier_ingest_chunks_upserted_total",
			Help: "Total number of chunk vectors written to the vector store",
		},
	)

	EmbeddingErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dossier_ingest_embedding_errors_total",
			Help: "Total number of embedding batch failures",
		},
	)
)
