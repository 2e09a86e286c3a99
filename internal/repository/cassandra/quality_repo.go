package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"rtc-coordinator/internal/domain"
)

// QualitySchema is the CQL table the repository writes to.
// Samples are partitioned per room and day to bound partition size.
const QualitySchema = `
	CREATE TABLE IF NOT EXISTS call_quality_samples (
		room_id text,
		day text,
		recorded_at timestamp,
		sample_id uuid,
		packet_loss double,
		latency_ms double,
		jitter_ms double,
		bandwidth_kbps double,
		suggestion text,
		PRIMARY KEY ((room_id, day), recorded_at, sample_id)
	) WITH CLUSTERING ORDER BY (recorded_at DESC, sample_id ASC)
`

// QualityRepository appends call quality samples to Cassandra
type QualityRepository struct {
	session *gocql.Session
}

// NewQualityRepository creates a new QualityRepository
func NewQualityRepository(session *gocql.Session) *QualityRepository {
	return &QualityRepository{session: session}
}

// EnsureSchema creates the samples table if it does not exist
func (r *QualityRepository) EnsureSchema(ctx context.Context) error {
	if err := r.session.Query(QualitySchema).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create quality schema: %w", err)
	}
	return nil
}

// RecordSample inserts one sample
func (r *QualityRepository) RecordSample(ctx context.Context, sample *domain.QualitySample) error {
	query := `
		INSERT INTO call_quality_samples (
			room_id, day, recorded_at, sample_id, packet_loss,
			latency_ms, jitter_ms, bandwidth_kbps, suggestion
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		sample.RoomID,
		DayBucket(sample.RecordedAt),
		sample.RecordedAt,
		gocql.UUID(sample.SampleID),
		sample.Metrics.PacketLoss,
		sample.Metrics.Latency,
		sample.Metrics.Jitter,
		sample.Metrics.Bandwidth,
		sample.Suggestion,
	).WithContext(ctx).Exec()

	if err != nil {
		return fmt.Errorf("failed to record quality sample: %w", err)
	}

	return nil
}

// DayBucket returns the UTC day partition key for t
func DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
