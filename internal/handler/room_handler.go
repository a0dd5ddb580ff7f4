package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/service"
	"github.com/stemsi/exstem-live/internal/validator"
)

// RoomHandler handles staff-facing room lifecycle, moderation and messaging.
type RoomHandler struct {
	roomService       *service.RoomService
	moderationService *service.ModerationService
	messagingService  *service.MessagingService
	rankingService    *service.RankingService
}

// NewRoomHandler creates a new RoomHandler.
func NewRoomHandler(
	roomService *service.RoomService,
	moderationService *service.ModerationService,
	messagingService *service.MessagingService,
	rankingService *service.RankingService,
) *RoomHandler {
	return &RoomHandler{
		roomService:       roomService,
		moderationService: moderationService,
		messagingService:  messagingService,
		rankingService:    rankingService,
	}
}

// OpenRoom godoc
// POST /api/v1/staff/assignments/:assignment_id/room/open
// Finds or creates the waiting room session for an assignment (idempotent).
func (h *RoomHandler) OpenRoom(c *gin.Context) {
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

	session, err := h.roomService.Open(c.Request.Context(), assignmentID, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// StartSession godoc
// POST /api/v1/staff/rooms/:session_id/start
// Starts a waiting session. Without force the full roster must be connected;
// the refusal reports connected/roster counts for the confirmation prompt.
func (h *RoomHandler) StartSession(c *gin.Context) {
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

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.roomService.Start(c.Request.Context(), sessionID, req.Force, claims.UserID)
	if err != nil {
		var blocked *service.StartBlockedError
		if errors.As(err, &blocked) {
			response.FailWithFields(c, http.StatusConflict, response.ErrRoomNotReady, map[string]string{
				"connected_count": strconv.Itoa(blocked.Connected),
				"roster_size":     strconv.Itoa(blocked.Total),
			})
			return
		}
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// EndSession godoc
// POST /api/v1/staff/rooms/:session_id/end
// Finalizes a session. Ending an already-completed session succeeds.
func (h *RoomHandler) EndSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.roomService.End(c.Request.Context(), sessionID)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// CancelSession godoc
// POST /api/v1/staff/rooms/:session_id/cancel
func (h *RoomHandler) CancelSession(c *gin.Context) {
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

	session, err := h.roomService.Cancel(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// SetWaitingMessage godoc
// PUT /api/v1/staff/rooms/:session_id/waiting-message
func (h *RoomHandler) SetWaitingMessage(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.WaitingMessageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.roomService.SetWaitingMessage(c.Request.Context(), sessionID, req.Message); err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": req.Message})
}

// GetBoard godoc
// GET /api/v1/staff/rooms/:session_id/board
// Returns the recomputed monitoring dashboard snapshot.
func (h *RoomHandler) GetBoard(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	board, err := h.moderationService.Board(c.Request.Context(), sessionID)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, board)
}

// KickParticipant godoc
// POST /api/v1/staff/rooms/:session_id/participants/:participant_id/kick
// Permanently removes a participant. Idempotent; the first reason wins.
func (h *RoomHandler) KickParticipant(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	participantID, err := uuid.Parse(c.Param("participant_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.KickRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	participant, err := h.moderationService.Kick(c.Request.Context(), participantID, req.Reason, claims.UserID)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"participant": participant})
}

// GetParticipantEvents godoc
// GET /api/v1/staff/rooms/:session_id/participants/:participant_id/events
func (h *RoomHandler) GetParticipantEvents(c *gin.Context) {
	participantID, err := uuid.Parse(c.Param("participant_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	events, err := h.moderationService.Events(c.Request.Context(), participantID, limit)
	if err != nil {
		failDomain(c, err)
		return
	}

	if events == nil {
		events = []model.CheatingEvent{}
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// SendMessage godoc
// POST /api/v1/staff/rooms/:session_id/participants/:participant_id/messages
func (h *RoomHandler) SendMessage(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	participantID, err := uuid.Parse(c.Param("participant_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SendMessageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sender := service.Sender{Type: model.SenderStaff, ID: claims.UserID}
	msg, err := h.messagingService.Send(c.Request.Context(), participantID, sender, req.Body)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"message": msg})
}

// GetThread godoc
// GET /api/v1/staff/rooms/:session_id/participants/:participant_id/messages
func (h *RoomHandler) GetThread(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	participantID, err := uuid.Parse(c.Param("participant_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	requester := service.Sender{Type: model.SenderStaff, ID: claims.UserID}
	msgs, err := h.messagingService.Thread(c.Request.Context(), participantID, requester)
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
// PATCH /api/v1/staff/rooms/:session_id/participants/:participant_id/messages/read
// Marks student-authored messages in the thread as read.
func (h *RoomHandler) MarkMessagesRead(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	participantID, err := uuid.Parse(c.Param("participant_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.MarkReadRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	caller := service.Sender{Type: model.SenderStaff, ID: claims.UserID}
	n, err := h.messagingService.MarkRead(c.Request.Context(), participantID, caller, req.MessageIDs)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"marked": n})
}

// GetRankings godoc
// GET /api/v1/staff/rooms/:session_id/rankings
// Staff view: real names, score descending.
func (h *RoomHandler) GetRankings(c *gin.Context) {
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

	requester := service.Requester{Role: claims.Role}
	rankings, err := h.rankingService.Rankings(c.Request.Context(), sessionID, requester)
	if err != nil {
		failDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"rankings": rankings})
}
