package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/service"
	ws "github.com/stemsi/exstem-live/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the student room WebSocket stream: heartbeats, cheat
// reports and supervisor messages over one connection instead of HTTP polling.
type WSHandler struct {
	rosterService     *service.RosterService
	presenceService   *service.PresenceService
	moderationService *service.ModerationService
	messagingService  *service.MessagingService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	rosterService *service.RosterService,
	presenceService *service.PresenceService,
	moderationService *service.ModerationService,
	messagingService *service.MessagingService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		rosterService:     rosterService,
		presenceService:   presenceService,
		moderationService: moderationService,
		messagingService:  messagingService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// RoomWebSocketStream godoc
// WS /ws/v1/student/rooms/:session_id/stream
// Upgrades to WebSocket for the duration of a room visit. The connection
// carries the same semantics as the HTTP endpoints; closing it counts as an
// explicit disconnect.
func (h *WSHandler) RoomWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID

	p, err := h.rosterService.Participant(c.Request.Context(), sessionID, studentID)
	if err != nil {
		ws.WriteError(conn, "not a participant of this room")
		return
	}
	if p.IsKicked {
		reason := ""
		if p.KickedReason != nil {
			reason = *p.KickedReason
		}
		ws.WriteTyped(conn, ws.KickedResponse{Event: ws.EventKicked, Reason: reason})
		return
	}

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("session_id", sessionID.String()).
		Logger()

	wsLog.Info().Msg("Student connected to room stream")

	for {
		data, err := ws.ReadRaw(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			ws.WriteError(conn, "malformed payload")
			continue
		}

		switch envelope.Action {
		case ws.ActionHeartbeat:
			h.handleHeartbeat(conn, wsLog, sessionID, studentID, data)
		case ws.ActionCheat:
			h.handleCheat(conn, wsLog, p.ID, data)
		case ws.ActionMessage:
			h.handleMessage(conn, wsLog, p.ID, studentID, data)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(envelope.Action))
		}
	}

	// A dropped stream is an explicit leave signal.
	if err := h.presenceService.Disconnect(context.Background(), sessionID, studentID); err != nil {
		wsLog.Warn().Err(err).Msg("Disconnect on stream close failed")
	}
}

// handleHeartbeat records liveness/progress and pushes back the room state.
// A kicked participant gets the kicked event and the connection is kept open
// so the client can render the removal screen before closing.
func (h *WSHandler) handleHeartbeat(conn *websocket.Conn, wsLog zerolog.Logger, sessionID uuid.UUID, studentID int, data []byte) {
	var req ws.HeartbeatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ws.WriteError(conn, "malformed heartbeat")
		return
	}

	var progress *model.HeartbeatProgress
	if req.CurrentQuestionIndex != nil || req.AnsweredCount != nil {
		progress = &model.HeartbeatProgress{
			CurrentQuestionIndex: req.CurrentQuestionIndex,
			AnsweredCount:        req.AnsweredCount,
		}
	}

	result, err := h.presenceService.Heartbeat(context.Background(), sessionID, studentID, progress)
	if err != nil {
		wsLog.Error().Err(err).Msg("Heartbeat failed")
		ws.WriteError(conn, "heartbeat failed")
		return
	}

	if result.IsKicked {
		reason := ""
		if result.KickedReason != nil {
			reason = *result.KickedReason
		}
		ws.WriteTyped(conn, ws.KickedResponse{Event: ws.EventKicked, Reason: reason})
		return
	}

	ws.WriteTyped(conn, ws.StateResponse{
		Event:         ws.EventState,
		SessionStatus: string(result.SessionStatus),
		TimeRemaining: result.TimeRemaining,
	})
}

// handleCheat records an anticheat event. Capture is best-effort server-side;
// the client only needs to know the report was accepted.
func (h *WSHandler) handleCheat(conn *websocket.Conn, wsLog zerolog.Logger, participantID uuid.UUID, data []byte) {
	var req ws.CheatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ws.WriteError(conn, "malformed cheat report")
		return
	}
	if req.EventType == "" {
		ws.WriteError(conn, "event_type is required")
		return
	}

	var metadata json.RawMessage
	if req.Metadata != "" {
		metadata = json.RawMessage(req.Metadata)
	}

	if err := h.moderationService.LogEvent(context.Background(), participantID, req.EventType, req.Description, metadata); err != nil {
		wsLog.Error().Err(err).Msg("Cheat report failed")
		ws.WriteError(conn, "report failed")
		return
	}

	ws.WriteTyped(conn, ws.AckResponse{Event: ws.EventAck})
}

// handleMessage posts into the student's supervisor thread.
func (h *WSHandler) handleMessage(conn *websocket.Conn, wsLog zerolog.Logger, participantID uuid.UUID, studentID int, data []byte) {
	var req ws.MessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ws.WriteError(conn, "malformed message")
		return
	}
	if req.Body == "" {
		ws.WriteError(conn, "body is required")
		return
	}

	sender := service.Sender{Type: model.SenderStudent, ID: studentID}
	if _, err := h.messagingService.Send(context.Background(), participantID, sender, req.Body); err != nil {
		wsLog.Error().Err(err).Msg("Message send failed")
		ws.WriteError(conn, "send failed")
		return
	}

	ws.WriteTyped(conn, ws.AckResponse{Event: ws.EventAck})
}
