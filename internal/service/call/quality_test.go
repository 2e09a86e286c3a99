package call

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtc-coordinator/internal/domain"
	"rtc-coordinator/pkg/resilience"
)

func TestMonitorCallQuality_Suggestions(t *testing.T) {
	tests := []struct {
		name       string
		metrics    domain.QualityMetrics
		suggestion string
	}{
		{"packet loss", domain.QualityMetrics{PacketLoss: 10, Latency: 50}, SuggestionAudioOnly},
		{"latency", domain.QualityMetrics{PacketLoss: 0, Latency: 250}, SuggestionReduceVideoQuality},
		{"both exceeded prefers audio-only", domain.QualityMetrics{PacketLoss: 12, Latency: 400}, SuggestionAudioOnly},
		{"at thresholds", domain.QualityMetrics{PacketLoss: 5, Latency: 200}, ""},
		{"healthy", domain.QualityMetrics{PacketLoss: 0.4, Latency: 35, Jitter: 3}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1, 2)
			session, err := f.svc.InitiateCall(context.Background(), 1, 2, domain.CallTypeVideo)
			require.NoError(t, err)
			f.send(1, SignalJoin, session.RoomID)
			f.send(2, SignalJoin, session.RoomID)

			f.clock.Advance(time.Minute)
			got := f.svc.MonitorCallQuality(context.Background(), session.RoomID, tt.metrics)
			assert.Equal(t, tt.suggestion, got)

			current, err := f.svc.GetSession(session.RoomID)
			require.NoError(t, err)
			assert.Equal(t, f.clock.Now(), current.LastActivityAt, "a sample counts as activity")

			require.Equal(t, 1, f.sink.count(), "every sample is recorded")
			sample := f.sink.samples[0]
			assert.Equal(t, session.RoomID, sample.RoomID)
			assert.Equal(t, tt.metrics, sample.Metrics)
			assert.Equal(t, tt.suggestion, sample.Suggestion)
			assert.Equal(t, f.clock.Now(), sample.RecordedAt)

			for _, user := range []int64{1, 2} {
				events := f.channels[user].roomEvents(t, EventQualitySuggestion)
				if tt.suggestion == "" {
					assert.Empty(t, events)
					continue
				}
				require.Len(t, events, 1)
				assert.Equal(t, tt.suggestion, events[0]["suggestion"])
				m, ok := events[0]["metrics"].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, tt.metrics.PacketLoss, m["packetLoss"])
				assert.Equal(t, tt.metrics.Latency, m["latency"])
			}
		})
	}
}

func TestMonitorCallQuality_UnknownRoomIsNoop(t *testing.T) {
	f := newFixture(t, 1)

	var suggestion string
	assert.NotPanics(t, func() {
		suggestion = f.svc.MonitorCallQuality(context.Background(), "room_1_unknown00", domain.QualityMetrics{PacketLoss: 50})
	})
	assert.Empty(t, suggestion)
	assert.Equal(t, 0, f.sink.count())
	assert.Empty(t, f.channels[1].messages(t))
}

func TestMonitorCallQuality_SinkFailureStillSuggests(t *testing.T) {
	f := newFixture(t, 1, 2)
	f.sink.err = errSinkDown
	session, err := f.svc.InitiateCall(context.Background(), 1, 2, domain.CallTypeVideo)
	require.NoError(t, err)
	f.send(1, SignalJoin, session.RoomID)

	var suggestion string
	assert.NotPanics(t, func() {
		suggestion = f.svc.MonitorCallQuality(context.Background(), session.RoomID, domain.QualityMetrics{Latency: 900})
	})
	assert.Equal(t, SuggestionReduceVideoQuality, suggestion)
	assert.Len(t, f.channels[1].roomEvents(t, EventQualitySuggestion), 1)
}

func TestSuggest_CustomThresholds(t *testing.T) {
	opts := DefaultOptions()
	opts.PacketLossThreshold = 1
	opts.LatencyThreshold = 80
	svc := NewService(NewSessionStore(), NewRegistry(nil), nil, opts)

	assert.Equal(t, SuggestionAudioOnly, svc.Suggest(domain.QualityMetrics{PacketLoss: 2}))
	assert.Equal(t, SuggestionReduceVideoQuality, svc.Suggest(domain.QualityMetrics{Latency: 100}))
	assert.Empty(t, svc.Suggest(domain.QualityMetrics{PacketLoss: 1, Latency: 80}))
}

func TestLogSink_NeverFails(t *testing.T) {
	sink := NewLogSink()
	err := sink.RecordSample(context.Background(), &domain.QualitySample{RoomID: "room_1_abcdefghi"})
	assert.NoError(t, err)
}

func TestGuardedSink_StopsCallingFailingSink(t *testing.T) {
	inner := &recordingSink{err: errSinkDown}
	breaker := resilience.NewCircuitBreaker(t.Name(), resilience.Settings{FailureThreshold: 2, CoolDown: time.Hour})
	sink := NewGuardedSink(inner, breaker)
	ctx := context.Background()
	sample := &domain.QualitySample{RoomID: "room_1_abcdefghi"}

	assert.ErrorIs(t, sink.RecordSample(ctx, sample), errSinkDown)
	assert.ErrorIs(t, sink.RecordSample(ctx, sample), errSinkDown)
	assert.ErrorIs(t, sink.RecordSample(ctx, sample), resilience.ErrCircuitOpen)
	assert.Equal(t, 2, inner.count())
	assert.Equal(t, resilience.CircuitBreakerOpen, breaker.State())
}
