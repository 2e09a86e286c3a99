package call

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"rtc-coordinator/internal/domain"
	"rtc-coordinator/pkg/constants"
	"rtc-coordinator/pkg/logger"
	"rtc-coordinator/pkg/metrics"
)

// ReapExpired ends sessions that were never answered or went idle with no
// active participant still connected, and drops registry channels that
// closed without a disconnect event.
// It returns the number of sessions ended.
func (s *Service) ReapExpired(ctx context.Context) int {
	// Unregister stale channels before taking the coordinator lock;
	// presence updates may do network I/O.
	var gone []int64
	for _, stale := range s.registry.StaleChannels() {
		if s.registry.UnregisterIf(ctx, stale.UserID, stale.Channel) {
			metrics.SignalingStaleChannelsReapedTotal.Inc()
			gone = append(gone, stale.UserID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, userID := range gone {
		s.disconnectLocked(ctx, userID)
	}

	now := s.now()
	ended := 0
	for _, session := range s.store.List() {
		reason := ""
		switch {
		case session.Status == domain.StatusInitiating && now.Sub(session.CreatedAt) > s.opts.RingTimeout:
			reason = ReasonRingTimeout
		case now.Sub(session.LastActivityAt) > s.opts.IdleTimeout && !s.anyConnectedLocked(session):
			reason = ReasonIdleTimeout
		}
		if reason == "" {
			continue
		}
		s.endLocked(ctx, session, constants.SystemUserID, reason)
		ended++
	}

	if ended > 0 || len(gone) > 0 {
		logger.FromContext(ctx).Info("Reaper sweep completed",
			zap.Int("sessions_ended", ended),
			zap.Int("stale_channels", len(gone)))
	}
	return ended
}

// anyConnectedLocked reports whether an active participant still holds an
// open signaling channel. Media flows peer-to-peer, so a live call may go
// quiet on signaling for longer than the idle timeout.
func (s *Service) anyConnectedLocked(session *domain.CallSession) bool {
	for _, userID := range session.ActiveUserIDs() {
		if s.registry.IsConnected(userID) {
			return true
		}
	}
	return false
}

// Reaper runs ReapExpired on a cron schedule
type Reaper struct {
	service  *Service
	interval time.Duration
	cron     *cron.Cron
}

// NewReaper creates a reaper that sweeps every interval
func NewReaper(service *Service, interval time.Duration) *Reaper {
	return &Reaper{
		service:  service,
		interval: interval,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules the sweep and starts the scheduler
func (r *Reaper) Start() error {
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(spec, func() {
		r.service.ReapExpired(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule reaper: %w", err)
	}
	r.cron.Start()
	logger.Info("Session reaper started", zap.Duration("interval", r.interval))
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish or ctx to expire
func (r *Reaper) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn("Reaper stop timed out")
	}
}
