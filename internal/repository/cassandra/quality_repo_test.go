package cassandra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayBucket(t *testing.T) {
	lateEvening := time.Date(2026, 5, 3, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))

	assert.Equal(t, "2026-05-04", DayBucket(lateEvening))
	assert.Equal(t, "2026-05-03", DayBucket(time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)))
}

func TestQualitySchema_PartitionsByRoomAndDay(t *testing.T) {
	assert.Contains(t, QualitySchema, "PRIMARY KEY ((room_id, day), recorded_at, sample_id)")
}
