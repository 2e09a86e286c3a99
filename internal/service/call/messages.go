package call

import (
	"encoding/json"
	"time"

	"rtc-coordinator/internal/domain"
)

// Inbound signaling message types
const (
	SignalJoin         = "join"
	SignalLeave        = "leave"
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
	SignalMute         = "mute"
	SignalUnmute       = "unmute"
)

// Outbound event types
const (
	EventIncomingCall          = "incoming_call"
	EventEmergencyNotification = "emergency_notification"
	EventConferenceInvitation  = "conference_invitation"
	EventRoomBroadcast         = "room_broadcast"
	EventParticipantJoined     = "participant_joined"
	EventParticipantLeft       = "participant_left"
	EventUserMuted             = "user_muted"
	EventUserUnmuted           = "user_unmuted"
	EventScreenShareStarted    = "screen_share_started"
	EventScreenShareStopped    = "screen_share_stopped"
	EventRecordingStarted      = "recording_started"
	EventCallEnded             = "call_ended"
	EventQualitySuggestion     = "quality_adjustment_suggestion"
)

// Quality suggestions
const (
	SuggestionAudioOnly          = "switch to audio-only"
	SuggestionReduceVideoQuality = "reduce video quality"
)

// End reasons reported in call_ended and metrics
const (
	ReasonEnded       = "ended"
	ReasonLastLeave   = "last_leave"
	ReasonRingTimeout = "ring_timeout"
	ReasonIdleTimeout = "idle_timeout"
)

// SignalingMessage is one inbound message from a connected user
type SignalingMessage struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"roomId"`
	UserID       int64           `json:"userId"`
	TargetUserID *int64          `json:"targetUserId,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// ParseSignalingMessage decodes a raw inbound frame
func ParseSignalingMessage(raw []byte) (*SignalingMessage, error) {
	var msg SignalingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// IncomingCallEvent notifies a recipient of a 1:1 call
type IncomingCallEvent struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId"`
	CallerID int64           `json:"callerId"`
	CallType domain.CallType `json:"callType"`
}

// EmergencyNotificationEvent is sent to every broadcast target
type EmergencyNotificationEvent struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// ConferenceInvitationEvent is sent to every conference invitee
type ConferenceInvitationEvent struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"roomId"`
	OrganizerID int64           `json:"organizerId"`
	Topic       string          `json:"topic"`
	CallType    domain.CallType `json:"callType"`
}

// RoomBroadcastEvent wraps a room-scoped event for all-participant delivery
type RoomBroadcastEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Event  any    `json:"event"`
}

// UserEvent carries the affected user for join, leave and mute notifications
type UserEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

// ScreenShareEvent announces a screen share change
type ScreenShareEvent struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordingStartedEvent tells participants the call is being recorded
type RecordingStartedEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CallEndedEvent is the last event a room emits
type CallEndedEvent struct {
	Type     string `json:"type"`
	Duration int64  `json:"duration"`
	EndedBy  int64  `json:"endedBy"`
	Reason   string `json:"reason,omitempty"`
}

// QualitySuggestionEvent carries an adaptive media suggestion
type QualitySuggestionEvent struct {
	Type       string                `json:"type"`
	Suggestion string                `json:"suggestion"`
	Metrics    domain.QualityMetrics `json:"metrics"`
}

