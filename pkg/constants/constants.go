// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 30 * time.Second

	// WebSocketPongWait is how long a connection may stay silent before it is considered dead
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// PresenceTTL is how long a presence key survives without a heartbeat
	PresenceTTL = 5 * time.Minute
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Call-related constants
const (
	// DefaultRingTimeout ends sessions nobody joined within this window
	DefaultRingTimeout = 60 * time.Second

	// DefaultIdleTimeout ends sessions with no signaling activity within this window
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultReaperInterval is how often expired sessions and stale channels are swept
	DefaultReaperInterval = 15 * time.Second

	// DefaultPacketLossThreshold is the packet loss percentage above which audio-only is suggested
	DefaultPacketLossThreshold = 5.0

	// DefaultLatencyThreshold is the round-trip latency in milliseconds above which lower video quality is suggested
	DefaultLatencyThreshold = 200.0

	// DefaultRecordingFormat is the file extension of recording objects
	DefaultRecordingFormat = "webm"

	// RecordingPrefix is the object key prefix for call recordings
	RecordingPrefix = "recordings/"

	// MaxTopicLength bounds a conference topic in runes
	MaxTopicLength = 200

	// MaxBroadcastMessageLength bounds an emergency broadcast message in runes
	MaxBroadcastMessageLength = 1000

	// RecordingUploadURLExpiry is the validity period of presigned recording upload URLs
	RecordingUploadURLExpiry = 2 * time.Hour
)

// Signaling constants
const (
	// DefaultMaxSignalingConnections caps concurrent WebSocket connections per instance
	DefaultMaxSignalingConnections = 1000

	// DefaultSendBufferSize is the per-connection outbound frame buffer
	DefaultSendBufferSize = 256

	// MaxSignalingMessageSize bounds a single inbound frame (SDP blobs can be large)
	MaxSignalingMessageSize = 64 * 1024

	// SystemUserID is used as endedBy when the coordinator itself ends a session
	SystemUserID int64 = 0
)
