// Package metrics defines Prometheus metrics for the media pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter metrics (monotonically increasing)
var (
	// UploadSessionsTotal counts upload sessions by outcome
	// (initiated, resumed, completed, cancelled, failed, expired)
	UploadSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursewire_upload_sessions_total",
			Help: "Total number of chunked upload sessions by outcome",
		},
		[]string{"outcome"},
	)

	// ChunksReceivedTotal counts individual chunks accepted
	ChunksReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursewire_chunks_received_total",
			Help: "Total number of upload chunks accepted",
		},
	)

	// UploadBytesTotal counts bytes accepted across all chunks
	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursewire_upload_bytes_total",
			Help: "Total bytes accepted across all upload chunks",
		},
	)

	// ProgressSavesTotal counts playback position saves by status
	ProgressSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursewire_progress_saves_total",
			Help: "Total number of video progress saves",
		},
		[]string{"status"},
	)

	// LessonCompletionsTotal counts lesson completion calls by status
	LessonCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursewire_lesson_completions_total",
			Help: "Total number of lesson completion calls",
		},
		[]string{"status"},
	)

	// ManifestRequestsTotal counts streaming manifest fetches by status
	ManifestRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursewire_manifest_requests_total",
			Help: "Total number of streaming manifest requests",
		},
		[]string{"status"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursewire_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Histogram metrics (distributions)
var (
	// HTTPRequestDuration tracks HTTP request latency by method and path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursewire_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// ChunkSizeBytes tracks the size distribution of accepted chunks
	ChunkSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coursewire_chunk_size_bytes",
			Help:    "Size distribution of accepted upload chunks",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 9), // 64KiB .. 16MiB
		},
	)

	// AssemblyDuration tracks how long final chunk assembly takes
	AssemblyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coursewire_assembly_duration_seconds",
			Help:    "Duration of chunk assembly at upload completion",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)
