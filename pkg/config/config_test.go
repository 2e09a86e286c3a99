package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Call.RingTimeout)
	assert.Equal(t, 5.0, cfg.Call.PacketLossThreshold)
	assert.Equal(t, 200.0, cfg.Call.LatencyThreshold)
	assert.Equal(t, "webm", cfg.Call.RecordingFormat)
	assert.Equal(t, QualitySinkLog, cfg.Call.QualitySink)
	assert.Equal(t, ":8085", cfg.Server.Addr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QUALITY_SINK", "Cassandra")
	t.Setenv("CASSANDRA_HOSTS", "cass-1,cass-2")
	t.Setenv("CALL_RING_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, QualitySinkCassandra, cfg.Call.QualitySink)
	assert.Equal(t, []string{"cass-1", "cass-2"}, cfg.Cassandra.Hosts)
	assert.Equal(t, 90*time.Second, cfg.Call.RingTimeout)
}

func TestLoad_RejectsUnknownSink(t *testing.T) {
	t.Setenv("QUALITY_SINK", "bigquery")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_RecordingFormat(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Call.RecordingFormat = ".mp4"
	assert.Error(t, cfg.Validate())

	cfg.Call.RecordingFormat = "mp4"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ProductionWildcardOrigin(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Server.Environment = "production"
	cfg.Signaling.AllowedOrigins = []string{"*"}
	assert.Error(t, cfg.Validate())
}
