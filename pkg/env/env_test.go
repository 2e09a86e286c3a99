package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStringFromFile(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "redis_password")
	require.NoError(t, os.WriteFile(secret, []byte("s3cret\n"), 0o600))

	t.Setenv("REDIS_PASSWORD_FILE", secret)
	t.Setenv("REDIS_PASSWORD", "from-env")

	assert.Equal(t, "s3cret", GetStringFromFile("REDIS_PASSWORD", ""))
}

func TestGetStringFromFile_FallsBackToEnv(t *testing.T) {
	t.Setenv("REDIS_PASSWORD_FILE", "/does/not/exist")
	t.Setenv("REDIS_PASSWORD", "from-env")

	assert.Equal(t, "from-env", GetStringFromFile("REDIS_PASSWORD", ""))
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("RING_TIMEOUT", "45s")
	t.Setenv("PACKET_LOSS_THRESHOLD", "7.5")
	t.Setenv("MAX_CONNS", "not-a-number")
	t.Setenv("ORIGINS", " http://a.test, ,http://b.test ")

	assert.Equal(t, 45*time.Second, GetDuration("RING_TIMEOUT", time.Minute))
	assert.Equal(t, 7.5, GetFloat("PACKET_LOSS_THRESHOLD", 5))
	assert.Equal(t, 1000, GetInt("MAX_CONNS", 1000))
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, GetStringSlice("ORIGINS", nil))
	assert.True(t, GetBool("UNSET_BOOL_FOR_TEST", true))
}
