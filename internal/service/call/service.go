package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rtc-coordinator/internal/domain"
	"rtc-coordinator/pkg/constants"
	apperrors "rtc-coordinator/pkg/errors"
	"rtc-coordinator/pkg/logger"
	"rtc-coordinator/pkg/metrics"
)

// Options tunes session lifecycle and quality behaviour
type Options struct {
	RingTimeout         time.Duration
	IdleTimeout         time.Duration
	PacketLossThreshold float64
	LatencyThreshold    float64
	RecordingFormat     string
}

// DefaultOptions returns the built-in thresholds and timeouts
func DefaultOptions() Options {
	return Options{
		RingTimeout:         constants.DefaultRingTimeout,
		IdleTimeout:         constants.DefaultIdleTimeout,
		PacketLossThreshold: constants.DefaultPacketLossThreshold,
		LatencyThreshold:    constants.DefaultLatencyThreshold,
		RecordingFormat:     constants.DefaultRecordingFormat,
	}
}

// Service coordinates call sessions.
// A single mutex serializes API calls, relayed signaling messages and
// reaper sweeps so every handler observes and mutates sessions atomically.
type Service struct {
	mu       sync.Mutex
	store    *SessionStore
	registry *Registry
	sink     QualitySink
	opts     Options
	now      func() time.Time
}

// NewService creates a new call service. A nil sink logs samples.
func NewService(store *SessionStore, registry *Registry, sink QualitySink, opts Options) *Service {
	if sink == nil {
		sink = NewLogSink()
	}
	if opts.RecordingFormat == "" {
		opts.RecordingFormat = constants.DefaultRecordingFormat
	}
	return &Service{
		store:    store,
		registry: registry,
		sink:     sink,
		opts:     opts,
		now:      time.Now,
	}
}

// EndCallResult is returned by EndCall
type EndCallResult struct {
	Success  bool  `json:"success"`
	Duration int64 `json:"duration"`
}

// ScreenShareResult is returned by the screen share operations
type ScreenShareResult struct {
	Success       bool `json:"success"`
	ScreenSharing bool `json:"screenSharing"`
}

// RecordingResult is returned by StartCallRecording
type RecordingResult struct {
	Success      bool   `json:"success"`
	RecordingURL string `json:"recordingUrl"`
}

// InitiateCall creates a 1:1 session and rings the recipient
func (s *Service) InitiateCall(ctx context.Context, callerID, recipientID int64, callType domain.CallType) (*domain.CallSession, error) {
	const op = "initiate_call"
	if !callType.Valid() {
		return nil, s.fail(op, apperrors.ValidationError(fmt.Sprintf("unsupported call type %q", callType)))
	}
	if callerID <= 0 || recipientID <= 0 {
		return nil, s.fail(op, apperrors.ValidationError("caller and recipient ids must be positive"))
	}
	if callerID == recipientID {
		return nil, s.fail(op, apperrors.ValidationError("caller and recipient must differ"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.newSessionLocked(domain.KindDirect, callerID, callType)
	if err != nil {
		return nil, s.fail(op, apperrors.InternalError(err.Error()))
	}
	recipient := recipientID
	session.RecipientID = &recipient
	s.store.Put(session)

	// Ring the recipient; an offline recipient is not an error
	s.registry.Send(recipientID, EventIncomingCall, IncomingCallEvent{
		Type:     EventIncomingCall,
		RoomID:   session.RoomID,
		CallerID: callerID,
		CallType: callType,
	})

	metrics.CallSessionsCreatedTotal.WithLabelValues(string(session.Kind), string(callType)).Inc()
	logger.FromContext(ctx).Info("Call initiated",
		logger.RoomID(session.RoomID),
		logger.UserID(callerID),
		zap.Int64("recipient_id", recipientID),
		zap.String("call_type", string(callType)))

	return session.Clone(), nil
}

// InitiateEmergencyBroadcast creates a live, recorded audio session and
// notifies every target independently
func (s *Service) InitiateEmergencyBroadcast(ctx context.Context, initiatorID int64, message string, targets []int64) (*domain.CallSession, error) {
	const op = "emergency_broadcast"
	if initiatorID <= 0 {
		return nil, s.fail(op, apperrors.ValidationError("initiator id must be positive"))
	}
	if message == "" {
		return nil, s.fail(op, apperrors.ValidationError("message is required"))
	}
	targets = dedupeUsers(targets)
	if len(targets) == 0 {
		return nil, s.fail(op, apperrors.ValidationError("at least one target user is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.newSessionLocked(domain.KindEmergencyBroadcast, initiatorID, domain.CallTypeAudio)
	if err != nil {
		return nil, s.fail(op, apperrors.InternalError(err.Error()))
	}
	startedAt := session.CreatedAt
	session.Status = domain.StatusConnected
	session.StartedAt = &startedAt
	session.RecordingEnabled = true
	session.Message = message
	session.Invitees = targets
	s.store.Put(session)

	delivered := 0
	for _, target := range targets {
		status := s.registry.Send(target, EventEmergencyNotification, EmergencyNotificationEvent{
			Type:     "emergency_broadcast",
			RoomID:   session.RoomID,
			Message:  message,
			Priority: "urgent",
		})
		if status == DeliveryDelivered {
			delivered++
		}
	}

	metrics.CallSessionsCreatedTotal.WithLabelValues(string(session.Kind), string(session.CallType)).Inc()
	logger.FromContext(ctx).Warn("Emergency broadcast initiated",
		logger.RoomID(session.RoomID),
		logger.UserID(initiatorID),
		zap.Int("targets", len(targets)),
		zap.Int("delivered", delivered))

	return session.Clone(), nil
}

// CreateConferenceCall creates a video conference and invites every participant
func (s *Service) CreateConferenceCall(ctx context.Context, organizerID int64, participants []int64, topic string) (*domain.CallSession, error) {
	const op = "create_conference"
	if organizerID <= 0 {
		return nil, s.fail(op, apperrors.ValidationError("organizer id must be positive"))
	}
	participants = dedupeUsers(participants)
	if len(participants) == 0 {
		return nil, s.fail(op, apperrors.ValidationError("at least one participant is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.newSessionLocked(domain.KindConference, organizerID, domain.CallTypeVideo)
	if err != nil {
		return nil, s.fail(op, apperrors.InternalError(err.Error()))
	}
	session.Topic = topic
	session.Invitees = participants
	s.store.Put(session)

	for _, participant := range participants {
		s.registry.Send(participant, EventConferenceInvitation, ConferenceInvitationEvent{
			Type:        EventConferenceInvitation,
			RoomID:      session.RoomID,
			OrganizerID: organizerID,
			Topic:       topic,
			CallType:    session.CallType,
		})
	}

	metrics.CallSessionsCreatedTotal.WithLabelValues(string(session.Kind), string(session.CallType)).Inc()
	logger.FromContext(ctx).Info("Conference created",
		logger.RoomID(session.RoomID),
		logger.UserID(organizerID),
		zap.Int("invitees", len(participants)))

	return session.Clone(), nil
}

// EndCall ends the session, notifies the room and removes it from the store
func (s *Service) EndCall(ctx context.Context, roomID string, userID int64) (*EndCallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.Get(roomID)
	if !ok {
		return nil, s.fail("end_call", apperrors.RoomNotFoundError(roomID))
	}

	duration := s.endLocked(ctx, session, userID, ReasonEnded)
	return &EndCallResult{Success: true, Duration: duration}, nil
}

// StartScreenShare marks the user's active entry as sharing and notifies the room
func (s *Service) StartScreenShare(ctx context.Context, userID int64, roomID string) (*ScreenShareResult, error) {
	return s.setScreenShare(ctx, "start_screen_share", userID, roomID, true)
}

// StopScreenShare clears the user's sharing flag and notifies the room
func (s *Service) StopScreenShare(ctx context.Context, userID int64, roomID string) (*ScreenShareResult, error) {
	return s.setScreenShare(ctx, "stop_screen_share", userID, roomID, false)
}

func (s *Service) setScreenShare(ctx context.Context, op string, userID int64, roomID string, sharing bool) (*ScreenShareResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.Get(roomID)
	if !ok {
		return nil, s.fail(op, apperrors.RoomNotFoundError(roomID))
	}
	entries := session.ActiveEntriesFor(userID)
	if len(entries) == 0 {
		return nil, s.fail(op, apperrors.NotAParticipantError(userID, roomID))
	}

	now := s.now()
	for _, p := range entries {
		p.ScreenSharing = sharing
	}
	session.LastActivityAt = now

	eventType := EventScreenShareStarted
	if !sharing {
		eventType = EventScreenShareStopped
	}
	s.broadcastLocked(session, eventType, ScreenShareEvent{
		Type:      eventType,
		UserID:    userID,
		Timestamp: now,
	})

	logger.FromContext(ctx).Info("Screen share changed",
		logger.RoomID(roomID),
		logger.UserID(userID),
		zap.Bool("sharing", sharing))

	return &ScreenShareResult{Success: true, ScreenSharing: sharing}, nil
}

// StartCallRecording enables recording; only the initiator may start it
func (s *Service) StartCallRecording(ctx context.Context, roomID string, userID int64) (*RecordingResult, error) {
	const op = "start_recording"

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.Get(roomID)
	if !ok {
		return nil, s.fail(op, apperrors.RoomNotFoundError(roomID))
	}
	if userID != session.CallerID {
		return nil, s.fail(op, apperrors.PermissionDeniedError("Only the call initiator can start recording"))
	}

	now := s.now()
	session.RecordingEnabled = true
	session.RecordingURL = RecordingKey(roomID, now, s.opts.RecordingFormat)
	session.LastActivityAt = now

	s.broadcastLocked(session, EventRecordingStarted, RecordingStartedEvent{
		Type:    EventRecordingStarted,
		Message: "This call is being recorded",
	})

	metrics.CallRecordingsStartedTotal.Inc()
	logger.FromContext(ctx).Info("Call recording started",
		logger.RoomID(roomID),
		logger.UserID(userID),
		zap.String("recording_url", session.RecordingURL))

	return &RecordingResult{Success: true, RecordingURL: session.RecordingURL}, nil
}

// RecordingKey returns recordings/<roomId>_<epochMillis>.<ext>
func RecordingKey(roomID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s%s_%d.%s", constants.RecordingPrefix, roomID, at.UnixMilli(), ext)
}

// GetSession returns a snapshot of the session
func (s *Service) GetSession(roomID string) (*domain.CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.Get(roomID)
	if !ok {
		return nil, apperrors.RoomNotFoundError(roomID)
	}
	return session.Clone(), nil
}

// ActiveSessions returns snapshots of every live session
func (s *Service) ActiveSessions() []*domain.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.store.List()
	snapshots := make([]*domain.CallSession, len(list))
	for i, session := range list {
		snapshots[i] = session.Clone()
	}
	return snapshots
}

func (s *Service) newSessionLocked(kind domain.SessionKind, callerID int64, callType domain.CallType) (*domain.CallSession, error) {
	now := s.now()

	// Retry on the unlikely collision with a live room
	for attempt := 0; attempt < 3; attempt++ {
		roomID, err := NewRoomID(now)
		if err != nil {
			return nil, err
		}
		if _, exists := s.store.Get(roomID); exists {
			continue
		}
		return &domain.CallSession{
			RoomID:         roomID,
			Kind:           kind,
			CallerID:       callerID,
			CallType:       callType,
			Status:         domain.StatusInitiating,
			Participants:   []*domain.CallParticipant{},
			CreatedAt:      now,
			LastActivityAt: now,
		}, nil
	}
	return nil, fmt.Errorf("failed to allocate unique room id")
}

// endLocked transitions the session to ended, notifies everyone that was
// part of the room and removes it from the store
func (s *Service) endLocked(ctx context.Context, session *domain.CallSession, endedBy int64, reason string) int64 {
	now := s.now()
	session.Status = domain.StatusEnded
	session.EndedAt = &now
	duration := session.DurationSeconds(now)

	event := CallEndedEvent{
		Type:     EventCallEnded,
		Duration: duration,
		EndedBy:  endedBy,
	}
	if reason != ReasonEnded {
		event.Reason = reason
	}
	s.sendToRoomLocked(session, endedRecipients(session), EventCallEnded, event)

	s.store.Delete(session.RoomID)

	metrics.CallSessionsEndedTotal.WithLabelValues(string(session.Kind), reason).Inc()
	metrics.CallDurationSeconds.WithLabelValues(string(session.CallType)).Observe(float64(duration))
	logger.FromContext(ctx).Info("Call ended",
		logger.RoomID(session.RoomID),
		zap.Int64("ended_by", endedBy),
		zap.String("reason", reason),
		zap.Int64("duration_seconds", duration))

	return duration
}

// broadcastLocked delivers a room event to every active participant
func (s *Service) broadcastLocked(session *domain.CallSession, eventType string, event any) {
	s.sendToRoomLocked(session, session.ActiveUserIDs(), eventType, event)
}

func (s *Service) sendToRoomLocked(session *domain.CallSession, recipients []int64, eventType string, event any) {
	envelope := RoomBroadcastEvent{
		Type:   EventRoomBroadcast,
		RoomID: session.RoomID,
		Event:  event,
	}
	for _, userID := range recipients {
		s.registry.Send(userID, eventType, envelope)
	}
}

func (s *Service) fail(op string, err *apperrors.AppError) error {
	metrics.CallOperationErrorsTotal.WithLabelValues(op, string(err.Code)).Inc()
	return err
}

// endedRecipients is everyone who joined plus everyone who was told about the room
func endedRecipients(session *domain.CallSession) []int64 {
	ids := []int64{session.CallerID}
	if session.RecipientID != nil {
		ids = append(ids, *session.RecipientID)
	}
	ids = append(ids, session.Invitees...)
	ids = append(ids, session.ParticipantUserIDs()...)
	return dedupeUsers(ids)
}

func dedupeUsers(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
