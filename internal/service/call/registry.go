package call

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"rtc-coordinator/pkg/logger"
	"rtc-coordinator/pkg/metrics"
)

// Channel is a connected user's outbound transport
type Channel interface {
	Send(data []byte) error
	IsOpen() bool
}

// DeliveryStatus is the outcome of a best-effort send
type DeliveryStatus string

const (
	DeliveryDelivered     DeliveryStatus = "delivered"
	DeliveryNoChannel     DeliveryStatus = "no_channel"
	DeliveryChannelClosed DeliveryStatus = "channel_closed"
	DeliveryFailed        DeliveryStatus = "failed"
)

// DeliveryObserver receives every delivery outcome
type DeliveryObserver func(userID int64, msgType string, status DeliveryStatus)

// PresenceTracker mirrors registry membership to an external presence store
type PresenceTracker interface {
	SetUserOnline(ctx context.Context, userID int64) error
	SetUserOffline(ctx context.Context, userID int64) error
	RefreshPresence(ctx context.Context, userID int64) error
}

// StaleChannel is a registered channel that is no longer open
type StaleChannel struct {
	UserID  int64
	Channel Channel
}

const presenceStripes = 64

// Registry maps user ids to their single live channel
type Registry struct {
	mu       sync.RWMutex
	channels map[int64]Channel

	presence PresenceTracker
	observer DeliveryObserver

	// presenceLocks order presence writes per user; each write re-reads the
	// mapping under its stripe so the last write matches the registry
	presenceLocks [presenceStripes]sync.Mutex
}

// NewRegistry creates a registry. presence may be nil.
func NewRegistry(presence PresenceTracker) *Registry {
	return &Registry{
		channels: make(map[int64]Channel),
		presence: presence,
	}
}

// SetDeliveryObserver installs fn as the delivery outcome callback
func (r *Registry) SetDeliveryObserver(fn DeliveryObserver) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// Register maps userID to ch, replacing any prior channel.
// The displaced channel, if any, is returned so the transport can close it.
func (r *Registry) Register(ctx context.Context, userID int64, ch Channel) Channel {
	r.mu.Lock()
	prev := r.channels[userID]
	r.channels[userID] = ch
	count := len(r.channels)
	r.mu.Unlock()

	metrics.SignalingConnections.Set(float64(count))
	if prev != nil {
		logger.Debug("Signaling channel displaced", logger.UserID(userID))
	}

	r.markOnline(ctx, userID, ch)
	return prev
}

// Unregister removes the mapping for userID
func (r *Registry) Unregister(ctx context.Context, userID int64) {
	r.mu.Lock()
	_, existed := r.channels[userID]
	delete(r.channels, userID)
	count := len(r.channels)
	r.mu.Unlock()

	if existed {
		r.markOffline(ctx, userID, count)
	}
}

// UnregisterIf removes the mapping only while it still points at ch
func (r *Registry) UnregisterIf(ctx context.Context, userID int64, ch Channel) bool {
	r.mu.Lock()
	current, ok := r.channels[userID]
	if !ok || current != ch {
		r.mu.Unlock()
		return false
	}
	delete(r.channels, userID)
	count := len(r.channels)
	r.mu.Unlock()

	r.markOffline(ctx, userID, count)
	return true
}

// Touch refreshes presence for a user whose channel is alive
func (r *Registry) Touch(ctx context.Context, userID int64) {
	if r.presence == nil || !r.IsConnected(userID) {
		return
	}
	if err := r.presence.RefreshPresence(ctx, userID); err != nil {
		logger.Debug("Failed to refresh presence", logger.UserID(userID), zap.Error(err))
	}
}

// Send delivers msg to userID without blocking or reporting failure to the sender
func (r *Registry) Send(userID int64, msgType string, msg any) DeliveryStatus {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Error("Failed to encode outbound message",
			zap.String("type", msgType), zap.Error(err))
		return r.record(userID, msgType, DeliveryFailed)
	}

	r.mu.RLock()
	ch, ok := r.channels[userID]
	r.mu.RUnlock()

	if !ok {
		return r.record(userID, msgType, DeliveryNoChannel)
	}
	if !ch.IsOpen() {
		return r.record(userID, msgType, DeliveryChannelClosed)
	}
	if err := ch.Send(payload); err != nil {
		logger.Debug("Signaling send dropped",
			logger.UserID(userID), zap.String("type", msgType), zap.Error(err))
		return r.record(userID, msgType, DeliveryFailed)
	}
	return r.record(userID, msgType, DeliveryDelivered)
}

// IsConnected reports whether userID has an open channel
func (r *Registry) IsConnected(userID int64) bool {
	r.mu.RLock()
	ch, ok := r.channels[userID]
	r.mu.RUnlock()
	return ok && ch.IsOpen()
}

// Count returns the number of registered channels
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// StaleChannels returns registered channels that report themselves closed
func (r *Registry) StaleChannels() []StaleChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []StaleChannel
	for userID, ch := range r.channels {
		if !ch.IsOpen() {
			stale = append(stale, StaleChannel{UserID: userID, Channel: ch})
		}
	}
	return stale
}

func (r *Registry) presenceLock(userID int64) *sync.Mutex {
	stripe := userID % presenceStripes
	if stripe < 0 {
		stripe = -stripe
	}
	return &r.presenceLocks[stripe]
}

func (r *Registry) current(userID int64) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[userID]
	return ch, ok
}

// markOnline writes online presence unless ch was already displaced or removed
func (r *Registry) markOnline(ctx context.Context, userID int64, ch Channel) {
	if r.presence == nil {
		return
	}
	lock := r.presenceLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if current, ok := r.current(userID); !ok || current != ch {
		logger.Debug("Skipping online presence for replaced channel", logger.UserID(userID))
		return
	}
	if err := r.presence.SetUserOnline(ctx, userID); err != nil {
		logger.Warn("Failed to mark user online", logger.UserID(userID), zap.Error(err))
	}
}

// markOffline writes offline presence unless a new channel registered meanwhile
func (r *Registry) markOffline(ctx context.Context, userID int64, count int) {
	metrics.SignalingConnections.Set(float64(count))
	if r.presence == nil {
		return
	}
	lock := r.presenceLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := r.current(userID); ok {
		return
	}
	if err := r.presence.SetUserOffline(ctx, userID); err != nil {
		logger.Warn("Failed to mark user offline", logger.UserID(userID), zap.Error(err))
	}
}

func (r *Registry) record(userID int64, msgType string, status DeliveryStatus) DeliveryStatus {
	metrics.SignalingDeliveryTotal.WithLabelValues(msgType, string(status)).Inc()

	r.mu.RLock()
	observer := r.observer
	r.mu.RUnlock()
	if observer != nil {
		observer(userID, msgType, status)
	}
	return status
}
