// Package metrics provides Prometheus metrics instrumentation for the station.
//
// It exposes operational metrics about the ingestion pipeline and archive,
// including heartbeat and image throughput, the per-kind count of telemetry
// points dropped by the monotonicity gate, and error tracking. All metrics
// are exposed via the /metrics HTTP endpoint for Prometheus scraping.
//
// Metrics exposed:
//   - icewatch_heartbeats_ingested_total: Counter of accepted heartbeats
//   - icewatch_heartbeats_malformed_total: Counter of discarded payloads
//   - icewatch_points_accepted_total: Counter of telemetry points stored
//   - icewatch_points_dropped_total: Counter of out-of-order points by kind
//   - icewatch_images_recorded_total: Counter of archived image records
//   - icewatch_ingest_seconds: Histogram of heartbeat ingest duration
//   - icewatch_last_heartbeat_timestamp_seconds: Gauge of the newest heartbeat time
//   - icewatch_errors_total: Counter of errors by component and reason
//
// All metrics include the station label for multi-station deployments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the station.
type Metrics struct {
	HeartbeatsIngested  prometheus.Counter
	HeartbeatsMalformed prometheus.Counter
	PointsAccepted      prometheus.Counter
	PointsDropped       *prometheus.CounterVec
	ImagesRecorded      prometheus.Counter
	IngestSeconds       prometheus.Histogram
	LastHeartbeat       prometheus.Gauge
	ErrorsTotal         *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(station string) *Metrics {
	return &Metrics{
		HeartbeatsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "icewatch_heartbeats_ingested_total",
			Help: "Total number of heartbeats accepted into the telemetry store",
			ConstLabels: prometheus.Labels{
				"station": station,
			},
		}),

		HeartbeatsMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "icewatch_heartbeats_malformed_total",
			Help: "Total number of heartbeat payloads discarded as malformed",
			ConstLabels: prometheus.Labels{
				"station": station,
			},
		}),

		PointsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "icewatch_points_accepted_total",
			Help: "Total number of telemetry points stored",
			ConstLabels: prometheus.Labels{
				"station": station,
			},
		}),

		PointsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "icewatch_points_dropped_total",
			Help: "Total number of telemetry points dropped by the monotonicity gate",
			ConstLabels: prometheus.Labels{
				"station": station,
			},
		}, []string{"kind"}),

		ImagesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "icewatch_images_recorded_total",
			Help: "Total number of image records written to the archive index",
			ConstLabels: prometheus.Labels{
				"station": station,
			},
		}),

		IngestSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "icewatch_ingest_seconds",
			Help: "Time spent parsing and storing one heartbeat",
			ConstLabels: prometheus.Labels{
				"station": station,
			},
			Buckets: prometheus.DefBuckets, // Default buckets: .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
		}),

		LastHeartbeat: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "icewatch_last_heartbeat_timestamp_seconds",
			Help: "Unix timestamp of the newest accepted heartbeat",
			ConstLabels: prometheus.Labels{
				"station": station,
			},
		}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "icewatch_errors_total",
			Help: "Total number of errors by component and reason",
			ConstLabels: prometheus.Labels{
				"station": station,
			},
		}, []string{"component", "reason"}),
	}
}

// RecordIngest records the time spent ingesting one heartbeat.
func (m *Metrics) RecordIngest(seconds float64) {
	m.IngestSeconds.Observe(seconds)
}

// RecordHeartbeat counts an accepted heartbeat and its point totals.
func (m *Metrics) RecordHeartbeat(accepted int) {
	m.HeartbeatsIngested.Inc()
	m.PointsAccepted.Add(float64(accepted))
}

// RecordMalformed counts a discarded payload.
func (m *Metrics) RecordMalformed() {
	m.HeartbeatsMalformed.Inc()
}

// RecordDropped counts a point dropped by the monotonicity gate.
func (m *Metrics) RecordDropped(kind string) {
	m.PointsDropped.WithLabelValues(kind).Inc()
}

// RecordImage counts an archived image record.
func (m *Metrics) RecordImage() {
	m.ImagesRecorded.Inc()
}

// SetLastHeartbeat sets the newest accepted heartbeat time.
func (m *Metrics) SetLastHeartbeat(t time.Time) {
	m.LastHeartbeat.Set(float64(t.Unix()))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
