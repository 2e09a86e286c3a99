package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType is the media kind of a session
type CallType string

const (
	CallTypeAudio       CallType = "audio"
	CallTypeVideo       CallType = "video"
	CallTypeScreenShare CallType = "screen_share"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	switch t {
	case CallTypeAudio, CallTypeVideo, CallTypeScreenShare:
		return true
	}
	return false
}

// CallStatus is the session state machine value.
// StatusRinging is part of the wire vocabulary but no transition assigns it.
type CallStatus string

const (
	StatusInitiating CallStatus = "initiating"
	StatusRinging    CallStatus = "ringing"
	StatusConnected  CallStatus = "connected"
	StatusEnded      CallStatus = "ended"
)

// SessionKind distinguishes how a session was created
type SessionKind string

const (
	KindDirect             SessionKind = "direct"
	KindConference         SessionKind = "conference"
	KindEmergencyBroadcast SessionKind = "emergency_broadcast"
)

// ParticipantRole is derived from whether the participant initiated the session
type ParticipantRole string

const (
	RoleCaller    ParticipantRole = "caller"
	RoleRecipient ParticipantRole = "recipient"
)

// CallSession represents one live call, conference or broadcast room
type CallSession struct {
	RoomID           string             `json:"roomId"`
	Kind             SessionKind        `json:"kind"`
	CallerID         int64              `json:"callerId"`
	RecipientID      *int64             `json:"recipientId,omitempty"`
	CallType         CallType           `json:"callType"`
	Status           CallStatus         `json:"status"`
	Participants     []*CallParticipant `json:"participants"`
	Invitees         []int64            `json:"invitees,omitempty"`
	Topic            string             `json:"topic,omitempty"`
	Message          string             `json:"message,omitempty"`
	RecordingEnabled bool               `json:"recordingEnabled"`
	RecordingURL     string             `json:"recordingUrl,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	StartedAt        *time.Time         `json:"startedAt,omitempty"`
	EndedAt          *time.Time         `json:"endedAt,omitempty"`
	LastActivityAt   time.Time          `json:"lastActivityAt"`
}

// CallParticipant is one join event of a user in a session
type CallParticipant struct {
	UserID        int64           `json:"userId"`
	ConnectionID  string          `json:"connectionId"`
	Role          ParticipantRole `json:"role"`
	AudioEnabled  bool            `json:"audioEnabled"`
	VideoEnabled  bool            `json:"videoEnabled"`
	ScreenSharing bool            `json:"screenSharing"`
	JoinedAt      time.Time       `json:"joinedAt"`
	LeftAt        *time.Time      `json:"leftAt,omitempty"`
}

// Active reports whether the participant has not left
func (p *CallParticipant) Active() bool {
	return p.LeftAt == nil
}

// NewParticipant builds the entry appended to a session on join
func NewParticipant(session *CallSession, userID int64, now time.Time) *CallParticipant {
	role := RoleRecipient
	if userID == session.CallerID {
		role = RoleCaller
	}
	return &CallParticipant{
		UserID:       userID,
		ConnectionID: uuid.NewString(),
		Role:         role,
		AudioEnabled: true,
		VideoEnabled: session.CallType == CallTypeVideo,
		JoinedAt:     now,
	}
}

// ActiveParticipants returns the entries without LeftAt, in join order
func (s *CallSession) ActiveParticipants() []*CallParticipant {
	active := make([]*CallParticipant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active
}

// ActiveCount returns the number of participants that have not left
func (s *CallSession) ActiveCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.Active() {
			n++
		}
	}
	return n
}

// ActiveEntriesFor returns every active entry belonging to userID
func (s *CallSession) ActiveEntriesFor(userID int64) []*CallParticipant {
	var entries []*CallParticipant
	for _, p := range s.Participants {
		if p.UserID == userID && p.Active() {
			entries = append(entries, p)
		}
	}
	return entries
}

// IsActiveParticipant reports whether userID has at least one active entry
func (s *CallSession) IsActiveParticipant(userID int64) bool {
	for _, p := range s.Participants {
		if p.UserID == userID && p.Active() {
			return true
		}
	}
	return false
}

// ActiveUserIDs returns distinct user ids with an active entry, in join order
func (s *CallSession) ActiveUserIDs() []int64 {
	return distinctUsers(s.Participants, true)
}

// ParticipantUserIDs returns distinct user ids that ever joined, in join order
func (s *CallSession) ParticipantUserIDs() []int64 {
	return distinctUsers(s.Participants, false)
}

// DurationSeconds returns whole seconds between StartedAt and end, or 0 if never started
func (s *CallSession) DurationSeconds(end time.Time) int64 {
	if s.StartedAt == nil {
		return 0
	}
	d := end.Sub(*s.StartedAt)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Clone returns a deep copy safe to hand outside the coordinator's lock
func (s *CallSession) Clone() *CallSession {
	c := *s
	if s.RecipientID != nil {
		id := *s.RecipientID
		c.RecipientID = &id
	}
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	if s.Invitees != nil {
		c.Invitees = append([]int64(nil), s.Invitees...)
	}
	c.Participants = make([]*CallParticipant, len(s.Participants))
	for i, p := range s.Participants {
		pc := *p
		pc.LeftAt = cloneTime(p.LeftAt)
		c.Participants[i] = &pc
	}
	return &c
}

func distinctUsers(participants []*CallParticipant, activeOnly bool) []int64 {
	seen := make(map[int64]struct{}, len(participants))
	ids := make([]int64, 0, len(participants))
	for _, p := range participants {
		if activeOnly && !p.Active() {
			continue
		}
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		ids = append(ids, p.UserID)
	}
	return ids
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// QualityMetrics is one client-reported network quality sample
type QualityMetrics struct {
	PacketLoss float64 `json:"packetLoss"`          // percent
	Latency    float64 `json:"latency"`             // milliseconds
	Jitter     float64 `json:"jitter,omitempty"`    // milliseconds
	Bandwidth  float64 `json:"bandwidth,omitempty"` // kbps
}

// QualitySample is the record handed to the quality sink
type QualitySample struct {
	SampleID   uuid.UUID      `json:"sampleId"`
	RoomID     string         `json:"roomId"`
	Metrics    QualityMetrics `json:"metrics"`
	Suggestion string         `json:"suggestion,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
}
