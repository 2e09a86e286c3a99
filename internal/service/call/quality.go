package call

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rtc-coordinator/internal/domain"
	"rtc-coordinator/pkg/logger"
	"rtc-coordinator/pkg/metrics"
	"rtc-coordinator/pkg/resilience"
)

// QualitySink is the append-only store for quality samples
type QualitySink interface {
	RecordSample(ctx context.Context, sample *domain.QualitySample) error
}

// LogSink writes samples to the structured log
type LogSink struct{}

// NewLogSink creates a sink that only logs
func NewLogSink() *LogSink {
	return &LogSink{}
}

// RecordSample implements QualitySink
func (LogSink) RecordSample(ctx context.Context, sample *domain.QualitySample) error {
	logger.FromContext(ctx).Info("Call quality sample",
		logger.RoomID(sample.RoomID),
		zap.String("sample_id", sample.SampleID.String()),
		zap.Float64("packet_loss", sample.Metrics.PacketLoss),
		zap.Float64("latency_ms", sample.Metrics.Latency),
		zap.Float64("jitter_ms", sample.Metrics.Jitter),
		zap.Float64("bandwidth_kbps", sample.Metrics.Bandwidth),
		zap.String("suggestion", sample.Suggestion))
	return nil
}

// GuardedSink skips writes to a failing sink until its breaker lets a
// trial through
type GuardedSink struct {
	sink    QualitySink
	breaker *resilience.CircuitBreaker
}

// NewGuardedSink wraps sink with breaker
func NewGuardedSink(sink QualitySink, breaker *resilience.CircuitBreaker) *GuardedSink {
	return &GuardedSink{sink: sink, breaker: breaker}
}

// RecordSample implements QualitySink
func (g *GuardedSink) RecordSample(ctx context.Context, sample *domain.QualitySample) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.sink.RecordSample(ctx, sample)
	})
}

// Suggest returns the adaptive suggestion for m, or "" when quality is acceptable.
// Packet loss wins when both thresholds are exceeded.
func (s *Service) Suggest(m domain.QualityMetrics) string {
	switch {
	case m.PacketLoss > s.opts.PacketLossThreshold:
		return SuggestionAudioOnly
	case m.Latency > s.opts.LatencyThreshold:
		return SuggestionReduceVideoQuality
	}
	return ""
}

// MonitorCallQuality records a sample and broadcasts a suggestion when
// thresholds are exceeded. It returns the broadcast suggestion, or "" when
// quality is acceptable or the room is unknown. A sample counts as room
// activity. It never fails; unknown rooms are ignored.
func (s *Service) MonitorCallQuality(ctx context.Context, roomID string, m domain.QualityMetrics) string {
	s.mu.Lock()
	session, ok := s.store.Get(roomID)
	if !ok {
		s.mu.Unlock()
		metrics.QualitySamplesTotal.WithLabelValues("skipped").Inc()
		return ""
	}

	now := s.now()
	session.LastActivityAt = now
	sample := &domain.QualitySample{
		SampleID:   uuid.New(),
		RoomID:     roomID,
		Metrics:    m,
		Suggestion: s.Suggest(m),
		RecordedAt: now.UTC(),
	}

	if sample.Suggestion != "" {
		s.broadcastLocked(session, EventQualitySuggestion, QualitySuggestionEvent{
			Type:       EventQualitySuggestion,
			Suggestion: sample.Suggestion,
			Metrics:    m,
		})
		metrics.QualitySuggestionsTotal.WithLabelValues(sample.Suggestion).Inc()
	}
	s.mu.Unlock()

	if m.PacketLoss >= 0 {
		metrics.QualityPacketLossPercent.Observe(m.PacketLoss)
	}
	if m.Latency >= 0 {
		metrics.QualityLatencyMilliseconds.Observe(m.Latency)
	}

	// Sink I/O happens outside the coordinator lock
	if err := s.sink.RecordSample(ctx, sample); err != nil {
		metrics.QualitySamplesTotal.WithLabelValues("failed").Inc()
		logger.FromContext(ctx).Warn("Failed to record quality sample",
			logger.RoomID(roomID),
			zap.Error(err))
		return sample.Suggestion
	}
	metrics.QualitySamplesTotal.WithLabelValues("stored").Inc()
	return sample.Suggestion
}
