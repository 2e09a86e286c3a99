package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call session metrics
var (
	CallSessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_sessions_created_total",
		Help: "Total number of call sessions created",
	}, []string{"kind", "call_type"})

	CallSessionsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_sessions_ended_total",
		Help: "Total number of call sessions ended",
	}, []string{"kind", "reason"}) // "ended", "last_leave", "ring_timeout", "idle_timeout"

	CallSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "call_sessions_active",
		Help: "Current number of sessions held in the session store",
	})

	CallDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "call_duration_seconds",
		Help:    "Duration of ended calls",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
	}, []string{"call_type"})

	CallOperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_operation_errors_total",
		Help: "Total number of call operations rejected",
	}, []string{"operation", "code"})

	CallRecordingsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_recordings_started_total",
		Help: "Total number of call recordings started",
	})
)

// Signaling metrics
var (
	SignalingMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_messages_total",
		Help: "Total number of inbound signaling messages",
	}, []string{"type", "result"}) // "handled", "ignored", "malformed"

	SignalingDeliveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_delivery_total",
		Help: "Outbound signaling deliveries by outcome",
	}, []string{"type", "outcome"})

	SignalingConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_connections",
		Help: "Current number of registered signaling channels",
	})

	SignalingConnectionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_connections_rejected_total",
		Help: "Total number of rejected signaling connections",
	}, []string{"reason"})

	SignalingStaleChannelsReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_stale_channels_reaped_total",
		Help: "Total number of registered channels found closed by the reaper",
	})
)

// Quality metrics
var (
	QualitySamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_quality_samples_total",
		Help: "Total number of quality samples ingested",
	}, []string{"sink_status"}) // "stored", "failed", "skipped"

	QualitySuggestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_quality_suggestions_total",
		Help: "Total number of quality adjustment suggestions broadcast",
	}, []string{"suggestion"})

	QualityPacketLossPercent = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "call_quality_packet_loss_percent",
		Help:    "Reported packet loss percentage",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50},
	})

	QualityLatencyMilliseconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "call_quality_latency_milliseconds",
		Help:    "Reported round-trip latency in milliseconds",
		Buckets: []float64{25, 50, 100, 150, 200, 300, 500, 1000},
	})
)
