package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/service"
	"github.com/stemsi/exstem-live/internal/validator"
)

// StudentRoomHandler handles the student-facing room endpoints: joining,
// polling, liveness, readiness, anticheat reporting and the supervisor thread.
type StudentRoomHandler struct {
	rosterService     *service.RosterService
	presenceService   *service.PresenceService
	moderationService *service.ModerationService
	messagingService  *service.MessagingService
	rankingService    *service.RankingService
}

// NewStudentRoomHandler creates a new StudentRoomHandler.
func NewStudentRoomHandler(
	rosterService *service.RosterService,
	presenceService *service.PresenceService,
	moderationService *service.ModerationService,
	messagingService *service.MessagingService,
	rankingService *service.RankingService,
) *StudentRoomHandler {
	return &StudentRoomHandler{
		rosterService:     rosterService,
		presenceService:   presenceService,
		moderationService: moderationService,
		messagingService:  messagingService,
		rankingService:    rankingService,
	}
}

// JoinRoom godoc
// POST /api/v1/student/assignments/:assignment_id/room/join
// Enters the student into the assignment's live session (idempotent upsert).
func (h *StudentRoomHandler) JoinRoom(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assignmentID, err := uuid.Parse(c.Param("assignment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.rosterService.Join(c.Request.Context(), assignmentID, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetState godoc
// GET /api/v1/student/rooms/:session_id/state
// The waiting/running screen poll: status, counts, banner, remaining time.
func (h *StudentRoomHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.rosterService.State(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// Heartbeat godoc
// POST /api/v1/student/rooms/:session_id/heartbeat
// Liveness signal with optional exam progress. A kicked student receives the
// soft removal result instead of an error.
func (h *StudentRoomHandler) Heartbeat(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var progress *model.HeartbeatProgress
	if c.Request.ContentLength > 0 {
		var req model.HeartbeatProgress
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
		progress = &req
	}

	result, err := h.presenceService.Heartbeat(c.Request.Context(), sessionID, claims.UserID, progress)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// SetReady godoc
// POST /api/v1/student/rooms/:session_id/ready
func (h *StudentRoomHandler) SetReady(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.rosterService.SetReady(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Disconnect godoc
// POST /api/v1/student/rooms/:session_id/disconnect
// Explicit leave signal (page close, exit from the finish screen).
func (h *StudentRoomHandler) Disconnect(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.presenceService.Disconnect(c.Request.Context(), sessionID, claims.UserID); err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"disconnected": true})
}

// LogEvent godoc
// POST /api/v1/student/rooms/:session_id/events
// The exam client reports a suspicious event (tab switch, blur, copy attempt).
func (h *StudentRoomHandler) LogEvent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.LogEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	p, err := h.rosterService.Participant(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	if err := h.moderationService.LogEvent(c.Request.Context(), p.ID, req.EventType, req.Description, req.Metadata); err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"recorded": true})
}

// SendMessage godoc
// POST /api/v1/student/rooms/:session_id/messages
func (h *StudentRoomHandler) SendMessage(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SendMessageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	p, err := h.rosterService.Participant(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	sender := service.Sender{Type: model.SenderStudent, ID: claims.UserID}
	msg, err := h.messagingService.Send(c.Request.Context(), p.ID, sender, req.Body)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"message": msg})
}

// GetMessages godoc
// GET /api/v1/student/rooms/:session_id/messages
// Returns the student's own supervisor thread.
func (h *StudentRoomHandler) GetMessages(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	p, err := h.rosterService.Participant(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	requester := service.Sender{Type: model.SenderStudent, ID: claims.UserID}
	msgs, err := h.messagingService.Thread(c.Request.Context(), p.ID, requester)
	if err != nil {
		failDomain(c, err)
		return
	}

	if msgs == nil {
		msgs = []model.Message{}
	}

	response.Success(c, http.StatusOK, gin.H{"messages": msgs})
}

// MarkMessagesRead godoc
// PATCH /api/v1/student/rooms/:session_id/messages/read
// Marks staff-authored messages in the student's thread as read.
func (h *StudentRoomHandler) MarkMessagesRead(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.MarkReadRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	p, err := h.rosterService.Participant(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	caller := service.Sender{Type: model.SenderStudent, ID: claims.UserID}
	n, err := h.messagingService.MarkRead(c.Request.Context(), p.ID, caller, req.MessageIDs)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"marked": n})
}

// GetRankings godoc
// GET /api/v1/student/rooms/:session_id/rankings
// Student view: own row shows the real name, every other row is anonymized.
func (h *StudentRoomHandler) GetRankings(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	requester := service.Requester{Role: claims.Role, StudentID: claims.UserID}
	rankings, err := h.rankingService.Rankings(c.Request.Context(), sessionID, requester)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"rankings": rankings})
}
