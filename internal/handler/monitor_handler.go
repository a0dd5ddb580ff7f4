package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams the live room dashboard to staff over SSE.
type MonitorHandler struct {
	rdb               *redis.Client
	moderationService *service.ModerationService
	log               zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, moderationService *service.ModerationService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:               rdb,
		moderationService: moderationService,
		log:               log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorRoomSSE godoc
// GET /api/v1/staff/rooms/:session_id/monitor
// Pushes an initial board snapshot, forwards live room events from Redis
// Pub/Sub, and refreshes the full board on a timer.
func (h *MonitorHandler) MonitorRoomSSE(c *gin.Context) {
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

	reqCtx := c.Request.Context()

	// Validate the session before committing to the stream.
	if _, err := h.moderationService.Board(reqCtx, sessionID); err != nil {
		failDomain(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	h.sendBoard(c, reqCtx, sessionID, "snapshot")

	channelName := config.CacheKey.RoomMonitorChannel(sessionID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("session_id", sessionID.String()).Msg("Staff attached to room monitor SSE")

	// Pre-allocate a reusable ping payload (never changes)
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("session_id", sessionID.String()).Msg("Staff detached from room monitor SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly — no deserialization needed
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendBoard(c, reqCtx, sessionID, "refresh")

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendBoard recomputes the board and writes it as one SSE event.
func (h *MonitorHandler) sendBoard(c *gin.Context, parentCtx context.Context, sessionID uuid.UUID, eventType string) {
	// Scoped timeout prevents a slow query from stalling the SSE loop
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	board, err := h.moderationService.Board(ctx, sessionID)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Board refresh failed")
		return
	}

	c.SSEvent("message", map[string]interface{}{
		"type":  eventType,
		"board": board,
	})
	c.Writer.Flush()
}
