package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtc-coordinator/internal/database"
)

func TestPresenceRepository_DegradedRedisReturnsErrors(t *testing.T) {
	client := database.NewRedisDB(&database.RedisConfig{
		Host:     "127.0.0.1",
		Port:     1,
		PoolSize: 1,
		Timeout:  200 * time.Millisecond,
	})
	defer client.Close()
	require.Error(t, client.HealthCheck(context.Background()))

	repo := NewPresenceRepository(client)
	ctx := context.Background()

	assert.True(t, repo.IsDegraded())
	assert.Error(t, repo.SetUserOnline(ctx, 42))
	assert.Error(t, repo.RefreshPresence(ctx, 42))
	assert.Error(t, repo.SetUserOffline(ctx, 42))

	online, err := repo.IsUserOnline(ctx, 42)
	assert.Error(t, err)
	assert.False(t, online)

	_, err = repo.GetOnlineCount(ctx)
	assert.Error(t, err)
}

func TestPresenceKey(t *testing.T) {
	assert.Equal(t, "presence:42", presenceKey(42))
}
