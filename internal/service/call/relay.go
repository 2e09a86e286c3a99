package call

import (
	"context"

	"go.uber.org/zap"

	"rtc-coordinator/internal/domain"
	"rtc-coordinator/pkg/logger"
	"rtc-coordinator/pkg/metrics"
)

// HandleRawMessage parses one inbound frame from userID and relays it.
// Malformed frames are logged and dropped.
func (s *Service) HandleRawMessage(ctx context.Context, userID int64, raw []byte) {
	msg, err := ParseSignalingMessage(raw)
	if err != nil {
		metrics.SignalingMessagesTotal.WithLabelValues("unknown", "malformed").Inc()
		logger.FromContext(ctx).Warn("Invalid signaling message",
			logger.UserID(userID),
			zap.Int("size", len(raw)),
			zap.Error(err))
		return
	}
	s.HandleMessage(ctx, userID, msg)
}

// HandleMessage dispatches one signaling message sent by userID.
// The message's userId is always replaced by the sender's identity.
func (s *Service) HandleMessage(ctx context.Context, userID int64, msg *SignalingMessage) {
	msg.UserID = userID

	s.mu.Lock()
	defer s.mu.Unlock()

	handled := false
	switch msg.Type {
	case SignalJoin:
		handled = s.joinLocked(ctx, msg)
	case SignalOffer, SignalAnswer, SignalICECandidate:
		handled = s.forwardLocked(msg)
	case SignalLeave:
		session, ok := s.store.Get(msg.RoomID)
		if ok {
			handled = s.leaveLocked(ctx, session, userID)
		}
	case SignalMute, SignalUnmute:
		handled = s.setAudioLocked(msg, msg.Type == SignalUnmute)
	default:
		metrics.SignalingMessagesTotal.WithLabelValues("unknown", "ignored").Inc()
		logger.FromContext(ctx).Warn("Unknown signaling message type",
			logger.UserID(userID),
			zap.String("type", msg.Type))
		return
	}

	result := "ignored"
	if handled {
		result = "handled"
	}
	metrics.SignalingMessagesTotal.WithLabelValues(msg.Type, result).Inc()
	if !handled {
		logger.FromContext(ctx).Debug("Signaling message ignored",
			logger.RoomID(msg.RoomID),
			logger.UserID(userID),
			zap.String("type", msg.Type))
	}
}

// HandleDisconnect applies leave in every room where userID is still active
func (s *Service) HandleDisconnect(ctx context.Context, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked(ctx, userID)
}

func (s *Service) disconnectLocked(ctx context.Context, userID int64) {
	rooms := 0
	for _, session := range s.store.List() {
		if session.IsActiveParticipant(userID) {
			s.leaveLocked(ctx, session, userID)
			rooms++
		}
	}
	if rooms > 0 {
		logger.FromContext(ctx).Info("Disconnected user left rooms",
			logger.UserID(userID),
			zap.Int("rooms", rooms))
	}
}

func (s *Service) joinLocked(ctx context.Context, msg *SignalingMessage) bool {
	session, ok := s.store.Get(msg.RoomID)
	if !ok {
		return false
	}

	now := s.now()
	session.Participants = append(session.Participants, domain.NewParticipant(session, msg.UserID, now))
	session.LastActivityAt = now

	// First join answers the call
	if session.Status == domain.StatusInitiating || session.Status == domain.StatusRinging {
		session.Status = domain.StatusConnected
		if session.StartedAt == nil {
			startedAt := now
			session.StartedAt = &startedAt
		}
	}

	s.broadcastLocked(session, EventParticipantJoined, UserEvent{
		Type:   EventParticipantJoined,
		UserID: msg.UserID,
	})

	logger.FromContext(ctx).Info("Participant joined",
		logger.RoomID(session.RoomID),
		logger.UserID(msg.UserID),
		zap.Int("active", session.ActiveCount()))
	return true
}

// forwardLocked relays negotiation payloads verbatim to the sender's peers
func (s *Service) forwardLocked(msg *SignalingMessage) bool {
	session, ok := s.store.Get(msg.RoomID)
	if !ok || !session.IsActiveParticipant(msg.UserID) {
		return false
	}
	session.LastActivityAt = s.now()

	if msg.TargetUserID != nil {
		target := *msg.TargetUserID
		if target == msg.UserID || !session.IsActiveParticipant(target) {
			return false
		}
		s.registry.Send(target, msg.Type, msg)
		return true
	}

	for _, peer := range session.ActiveUserIDs() {
		if peer == msg.UserID {
			continue
		}
		s.registry.Send(peer, msg.Type, msg)
	}
	return true
}

// leaveLocked marks every active entry of userID as left and ends the
// session when it can no longer continue
func (s *Service) leaveLocked(ctx context.Context, session *domain.CallSession, userID int64) bool {
	entries := session.ActiveEntriesFor(userID)
	if len(entries) == 0 {
		return false
	}

	now := s.now()
	for _, p := range entries {
		leftAt := now
		p.LeftAt = &leftAt
		p.ScreenSharing = false
	}
	session.LastActivityAt = now

	s.broadcastLocked(session, EventParticipantLeft, UserEvent{
		Type:   EventParticipantLeft,
		UserID: userID,
	})

	// A reconnecting user may hold several active entries; count users
	remaining := len(session.ActiveUserIDs())
	logger.FromContext(ctx).Info("Participant left",
		logger.RoomID(session.RoomID),
		logger.UserID(userID),
		zap.Int("active", remaining))

	if remaining == 0 || (session.Kind == domain.KindDirect && remaining < 2) {
		s.endLocked(ctx, session, userID, ReasonLastLeave)
	}
	return true
}

func (s *Service) setAudioLocked(msg *SignalingMessage, enabled bool) bool {
	session, ok := s.store.Get(msg.RoomID)
	if !ok {
		return false
	}
	entries := session.ActiveEntriesFor(msg.UserID)
	if len(entries) == 0 {
		return false
	}

	for _, p := range entries {
		p.AudioEnabled = enabled
	}
	session.LastActivityAt = s.now()

	eventType := EventUserMuted
	if enabled {
		eventType = EventUserUnmuted
	}
	s.broadcastLocked(session, eventType, UserEvent{
		Type:   eventType,
		UserID: msg.UserID,
	})
	return true
}
