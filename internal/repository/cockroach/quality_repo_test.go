package cockroach

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtc-coordinator/internal/domain"
)

// MockExecer is a mock implementation of execer
type MockExecer struct {
	mock.Mock
}

func (m *MockExecer) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return pgconn.NewCommandTag("INSERT 0 1"), args.Error(0)
}

func TestQualityRepository_RecordSample(t *testing.T) {
	pool := new(MockExecer)
	repo := NewQualityRepository(pool)

	sample := &domain.QualitySample{
		SampleID:   uuid.New(),
		RoomID:     "room_1767225600000_abcdefghi",
		Metrics:    domain.QualityMetrics{PacketLoss: 7.5, Latency: 120, Jitter: 4},
		Suggestion: "switch to audio-only",
		RecordedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	pool.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return assert.Contains(t, sql, "INSERT INTO call_quality_samples")
	}), []any{
		sample.SampleID, sample.RoomID, 7.5, 120.0, 4.0, 0.0, "switch to audio-only", sample.RecordedAt,
	}).Return(nil)

	require.NoError(t, repo.RecordSample(context.Background(), sample))
	pool.AssertExpectations(t)
}

func TestQualityRepository_WrapsErrors(t *testing.T) {
	pool := new(MockExecer)
	repo := NewQualityRepository(pool)
	dbErr := errors.New("connection refused")

	pool.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(dbErr)

	err := repo.RecordSample(context.Background(), &domain.QualitySample{SampleID: uuid.New()})
	assert.ErrorIs(t, err, dbErr)

	err = repo.EnsureSchema(context.Background())
	assert.ErrorIs(t, err, dbErr)
}
