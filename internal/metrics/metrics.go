// Package metrics holds the Prometheus instruments shared by the intake,
// sync, notification, and chat-flow packages.  All collectors are
// registered with the global registry, so mounting promhttp.Handler() in
// cmd/web is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pulse"

var (
	IntakeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_total",
			Help:      "Submissions processed by the intake pipeline, by result.",
		}, []string{"result"})

	ClassificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_total",
			Help:      "Classifier outcomes (matched, spam, unlisted, malformed, upstream_error).",
		}, []string{"outcome"})

	GeocodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_total",
			Help:      "Geocoder answers by provenance.",
		}, []string{"provenance"})

	PhotoUploadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photo_upload_total",
			Help:      "Photo handling during intake (uploaded, dropped, failed).",
		}, []string{"result"})

	SyncEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_total",
			Help:      "Synchronizer writes by entry point and result.",
		}, []string{"action", "result"})

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Status notifications by channel and result.",
		}, []string{"channel", "result"})

	FlowSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flow_sessions",
			Help:      "Chat-flow sessions currently held in memory.",
		})

	FlowSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_submissions_total",
			Help:      "Chat-flow terminal outcomes (submitted, queued, cancelled).",
		}, []string{"result"})

	LockWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_lock_wait_seconds",
			Help:      "Time spent waiting for a per-record lock.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		})
)

func init() {
	prometheus.MustRegister(
		IntakeTotal,
		ClassificationTotal,
		GeocodeTotal,
		PhotoUploadTotal,
		SyncEventsTotal,
		NotificationsTotal,
		FlowSessions,
		FlowSubmissionsTotal,
		LockWaitSeconds,
	)
}
