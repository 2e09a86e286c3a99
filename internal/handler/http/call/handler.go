package call

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rtc-coordinator/internal/domain"
	"rtc-coordinator/internal/middleware"
	callService "rtc-coordinator/internal/service/call"
	"rtc-coordinator/pkg/constants"
	"rtc-coordinator/pkg/logger"
	"rtc-coordinator/pkg/response"
	"rtc-coordinator/pkg/sanitize"
)

// UploadSigner issues upload URLs for recording objects
type UploadSigner interface {
	PresignUpload(ctx context.Context, objectKey string) (string, error)
}

// Handler handles call HTTP requests
type Handler struct {
	callService *callService.Service
	signer      UploadSigner
}

// NewHandler creates a new call handler. signer may be nil when object
// storage is disabled.
func NewHandler(callService *callService.Service, signer UploadSigner) *Handler {
	return &Handler{
		callService: callService,
		signer:      signer,
	}
}

// RegisterRoutes mounts the call endpoints on rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/initiate", h.InitiateCall)
	rg.POST("/broadcast", h.InitiateEmergencyBroadcast)
	rg.POST("/conference", h.CreateConferenceCall)
	rg.GET("", h.ListSessions)
	rg.GET("/:roomId", h.GetSession)
	rg.POST("/:roomId/screen-share", h.StartScreenShare)
	rg.DELETE("/:roomId/screen-share", h.StopScreenShare)
	rg.POST("/:roomId/recording", h.StartRecording)
	rg.POST("/:roomId/end", h.EndCall)
	rg.POST("/:roomId/quality", h.ReportQuality)
}

// InitiateCallRequest represents call initiation request
type InitiateCallRequest struct {
	RecipientID int64  `json:"recipientId" binding:"required"`
	CallType    string `json:"callType" binding:"required"`
}

// InitiateCall starts a 1:1 call
// POST /v1/calls/initiate
func (h *Handler) InitiateCall(c *gin.Context) {
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	session, err := h.callService.InitiateCall(c.Request.Context(), callerID, req.RecipientID, domain.CallType(req.CallType))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// EmergencyBroadcastRequest represents an emergency broadcast request
type EmergencyBroadcastRequest struct {
	Message     string  `json:"message" binding:"required"`
	TargetUsers []int64 `json:"targetUsers" binding:"required,min=1"`
}

// InitiateEmergencyBroadcast starts a broadcast and notifies every target
// POST /v1/calls/broadcast
func (h *Handler) InitiateEmergencyBroadcast(c *gin.Context) {
	var req EmergencyBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	initiatorID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	message := sanitize.Text(req.Message, constants.MaxBroadcastMessageLength)
	session, err := h.callService.InitiateEmergencyBroadcast(c.Request.Context(), initiatorID, message, req.TargetUsers)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// ConferenceRequest represents a conference creation request
type ConferenceRequest struct {
	Participants []int64 `json:"participants" binding:"required,min=1"`
	Topic        string  `json:"topic"`
}

// CreateConferenceCall creates a conference and invites the participants
// POST /v1/calls/conference
func (h *Handler) CreateConferenceCall(c *gin.Context) {
	var req ConferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	organizerID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	topic := sanitize.Text(req.Topic, constants.MaxTopicLength)
	session, err := h.callService.CreateConferenceCall(c.Request.Context(), organizerID, req.Participants, topic)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// ListSessions returns every live session
// GET /v1/calls
func (h *Handler) ListSessions(c *gin.Context) {
	sessions := h.callService.ActiveSessions()
	response.Success(c, http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession retrieves a session snapshot
// GET /v1/calls/:roomId
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.callService.GetSession(c.Param("roomId"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// StartScreenShare marks the caller as sharing
// POST /v1/calls/:roomId/screen-share
func (h *Handler) StartScreenShare(c *gin.Context) {
	h.setScreenShare(c, true)
}

// StopScreenShare clears the caller's sharing flag
// DELETE /v1/calls/:roomId/screen-share
func (h *Handler) StopScreenShare(c *gin.Context) {
	h.setScreenShare(c, false)
}

func (h *Handler) setScreenShare(c *gin.Context, sharing bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var (
		result *callService.ScreenShareResult
		err    error
	)
	if sharing {
		result, err = h.callService.StartScreenShare(c.Request.Context(), userID, c.Param("roomId"))
	} else {
		result, err = h.callService.StopScreenShare(c.Request.Context(), userID, c.Param("roomId"))
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// RecordingResponse extends the recording result with an optional upload URL
type RecordingResponse struct {
	*callService.RecordingResult
	UploadURL string `json:"uploadUrl,omitempty"`
}

// StartRecording enables recording for the room
// POST /v1/calls/:roomId/recording
func (h *Handler) StartRecording(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	ctx := c.Request.Context()
	roomID := c.Param("roomId")
	result, err := h.callService.StartCallRecording(ctx, roomID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	resp := RecordingResponse{RecordingResult: result}
	if h.signer != nil {
		// Recording is already on; a signing failure only loses the upload URL
		uploadURL, err := h.signer.PresignUpload(ctx, result.RecordingURL)
		if err != nil {
			logger.FromContext(ctx).Warn("Failed to presign recording upload",
				logger.RoomID(roomID),
				zap.Error(err))
		} else {
			resp.UploadURL = uploadURL
		}
	}

	response.Success(c, http.StatusOK, resp)
}

// EndCall terminates a call
// POST /v1/calls/:roomId/end
func (h *Handler) EndCall(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	result, err := h.callService.EndCall(c.Request.Context(), c.Param("roomId"), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// QualityRequest carries client-measured network metrics
type QualityRequest struct {
	PacketLoss float64 `json:"packetLoss"`
	Latency    float64 `json:"latency"`
	Jitter     float64 `json:"jitter"`
	Bandwidth  float64 `json:"bandwidth"`
}

// ReportQuality feeds a metrics sample to the quality monitor.
// Samples for unknown rooms are accepted and ignored.
// POST /v1/calls/:roomId/quality
func (h *Handler) ReportQuality(c *gin.Context) {
	var req QualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	m := domain.QualityMetrics{
		PacketLoss: req.PacketLoss,
		Latency:    req.Latency,
		Jitter:     req.Jitter,
		Bandwidth:  req.Bandwidth,
	}
	suggestion := h.callService.MonitorCallQuality(c.Request.Context(), c.Param("roomId"), m)

	response.Success(c, http.StatusAccepted, gin.H{
		"suggestion": suggestion,
	})
}
