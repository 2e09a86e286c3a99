package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPresenceTracker is a mock implementation of PresenceTracker
type MockPresenceTracker struct {
	mock.Mock
}

func (m *MockPresenceTracker) SetUserOnline(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceTracker) SetUserOffline(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceTracker) RefreshPresence(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func TestRegistry_LastWriterWins(t *testing.T) {
	registry := NewRegistry(nil)
	first, second := newFakeChannel(), newFakeChannel()

	assert.Nil(t, registry.Register(context.Background(), 7, first))
	displaced := registry.Register(context.Background(), 7, second)

	assert.Same(t, first, displaced)
	assert.Equal(t, 1, registry.Count())

	assert.Equal(t, DeliveryDelivered, registry.Send(7, "ping", map[string]string{"type": "ping"}))
	assert.Empty(t, first.frames)
	assert.Len(t, second.frames, 1)
}

func TestRegistry_UnregisterIfOnlyRemovesCurrent(t *testing.T) {
	registry := NewRegistry(nil)
	old, replacement := newFakeChannel(), newFakeChannel()
	registry.Register(context.Background(), 7, old)
	registry.Register(context.Background(), 7, replacement)

	assert.False(t, registry.UnregisterIf(context.Background(), 7, old))
	assert.True(t, registry.IsConnected(7))

	assert.True(t, registry.UnregisterIf(context.Background(), 7, replacement))
	assert.False(t, registry.IsConnected(7))
}

func TestRegistry_SendOutcomes(t *testing.T) {
	registry := NewRegistry(nil)

	var mu sync.Mutex
	observed := map[int64]DeliveryStatus{}
	registry.SetDeliveryObserver(func(userID int64, _ string, status DeliveryStatus) {
		mu.Lock()
		observed[userID] = status
		mu.Unlock()
	})

	closed := newFakeChannel()
	closed.close()
	failing := newFakeChannel()
	failing.sendErr = errors.New("send buffer full")

	registry.Register(context.Background(), 1, newFakeChannel())
	registry.Register(context.Background(), 2, closed)
	registry.Register(context.Background(), 3, failing)

	msg := UserEvent{Type: EventUserMuted, UserID: 1}
	assert.Equal(t, DeliveryDelivered, registry.Send(1, EventUserMuted, msg))
	assert.Equal(t, DeliveryChannelClosed, registry.Send(2, EventUserMuted, msg))
	assert.Equal(t, DeliveryFailed, registry.Send(3, EventUserMuted, msg))
	assert.Equal(t, DeliveryNoChannel, registry.Send(4, EventUserMuted, msg))
	assert.Equal(t, DeliveryFailed, registry.Send(1, "bad", make(chan int)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[int64]DeliveryStatus{
		1: DeliveryFailed,
		2: DeliveryChannelClosed,
		3: DeliveryFailed,
		4: DeliveryNoChannel,
	}, observed)
}

func TestRegistry_StaleChannels(t *testing.T) {
	registry := NewRegistry(nil)
	dead := newFakeChannel()
	registry.Register(context.Background(), 1, newFakeChannel())
	registry.Register(context.Background(), 2, dead)
	dead.close()

	stale := registry.StaleChannels()
	require.Len(t, stale, 1)
	assert.Equal(t, int64(2), stale[0].UserID)
	assert.Same(t, dead, stale[0].Channel)
}

func TestRegistry_PresenceMirroring(t *testing.T) {
	presence := new(MockPresenceTracker)
	registry := NewRegistry(presence)
	ctx := context.Background()
	ch := newFakeChannel()

	presence.On("SetUserOnline", ctx, int64(5)).Return(nil)
	presence.On("RefreshPresence", ctx, int64(5)).Return(errors.New("redis down"))
	presence.On("SetUserOffline", ctx, int64(5)).Return(nil)

	registry.Register(ctx, 5, ch)
	registry.Touch(ctx, 5)
	registry.Touch(ctx, 6)
	registry.Unregister(ctx, 5)
	registry.Unregister(ctx, 5)

	presence.AssertExpectations(t)
	presence.AssertNumberOfCalls(t, "SetUserOffline", 1)
	presence.AssertNotCalled(t, "RefreshPresence", ctx, int64(6))
}

func TestRegistry_PresenceFailureDoesNotBlockRegistration(t *testing.T) {
	presence := new(MockPresenceTracker)
	registry := NewRegistry(presence)
	ctx := context.Background()

	presence.On("SetUserOnline", ctx, int64(5)).Return(errors.New("redis down"))

	registry.Register(ctx, 5, newFakeChannel())

	assert.True(t, registry.IsConnected(5))
}

func TestRegistry_PresenceFollowsFinalMapping(t *testing.T) {
	presence := new(MockPresenceTracker)
	registry := NewRegistry(presence)
	ctx := context.Background()

	presence.On("SetUserOffline", ctx, int64(5)).Return(nil)

	// Hold the user's presence stripe so both writes queue behind the
	// registry changes
	lock := registry.presenceLock(5)
	lock.Lock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		registry.Register(ctx, 5, newFakeChannel())
	}()
	require.Eventually(t, func() bool { return registry.IsConnected(5) }, time.Second, time.Millisecond)

	go func() {
		defer wg.Done()
		registry.Unregister(ctx, 5)
	}()
	require.Eventually(t, func() bool { return !registry.IsConnected(5) }, time.Second, time.Millisecond)

	lock.Unlock()
	wg.Wait()

	presence.AssertNotCalled(t, "SetUserOnline", ctx, int64(5))
	presence.AssertNumberOfCalls(t, "SetUserOffline", 1)
}

func TestRegistry_StaleOfflineSkippedAfterReconnect(t *testing.T) {
	presence := new(MockPresenceTracker)
	registry := NewRegistry(presence)
	ctx := context.Background()

	presence.On("SetUserOnline", ctx, int64(5)).Return(nil)

	old, replacement := newFakeChannel(), newFakeChannel()
	registry.Register(ctx, 5, old)

	lock := registry.presenceLock(5)
	lock.Lock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		registry.UnregisterIf(ctx, 5, old)
	}()
	require.Eventually(t, func() bool { return !registry.IsConnected(5) }, time.Second, time.Millisecond)

	go func() {
		defer wg.Done()
		registry.Register(ctx, 5, replacement)
	}()
	require.Eventually(t, func() bool { return registry.IsConnected(5) }, time.Second, time.Millisecond)

	lock.Unlock()
	wg.Wait()

	assert.True(t, registry.IsConnected(5))
	presence.AssertNumberOfCalls(t, "SetUserOnline", 2)
	presence.AssertNotCalled(t, "SetUserOffline", ctx, int64(5))
}
