package cockroach

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"rtc-coordinator/internal/domain"
)

// execer is the subset of pgxpool.Pool used by the quality repository
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const qualitySchema = `
	CREATE TABLE IF NOT EXISTS call_quality_samples (
		sample_id UUID PRIMARY KEY,
		room_id STRING NOT NULL,
		packet_loss FLOAT8 NOT NULL,
		latency_ms FLOAT8 NOT NULL,
		jitter_ms FLOAT8 NOT NULL DEFAULT 0,
		bandwidth_kbps FLOAT8 NOT NULL DEFAULT 0,
		suggestion STRING NOT NULL DEFAULT '',
		recorded_at TIMESTAMPTZ NOT NULL,
		INDEX idx_call_quality_samples_room (room_id, recorded_at DESC)
	)
`

// QualityRepository appends call quality samples to CockroachDB
type QualityRepository struct {
	pool execer
}

// NewQualityRepository creates a new quality repository
func NewQualityRepository(pool execer) *QualityRepository {
	return &QualityRepository{pool: pool}
}

// EnsureSchema creates the samples table if it does not exist
func (r *QualityRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, qualitySchema); err != nil {
		return fmt.Errorf("failed to create quality schema: %w", err)
	}
	return nil
}

// RecordSample inserts one sample
func (r *QualityRepository) RecordSample(ctx context.Context, sample *domain.QualitySample) error {
	query := `
		INSERT INTO call_quality_samples (
			sample_id, room_id, packet_loss, latency_ms, jitter_ms,
			bandwidth_kbps, suggestion, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		sample.SampleID,
		sample.RoomID,
		sample.Metrics.PacketLoss,
		sample.Metrics.Latency,
		sample.Metrics.Jitter,
		sample.Metrics.Bandwidth,
		sample.Suggestion,
		sample.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record quality sample: %w", err)
	}

	return nil
}
