package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/handler"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Room        *handler.RoomHandler
	StudentRoom *handler.StudentRoomHandler
	Monitor     *handler.MonitorHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the student polling endpoints (heartbeat + state run
	// every few seconds per client; 120/min leaves generous headroom).
	pollLimiter := middleware.NewRateLimiter(120, time.Minute)

	// ─── 1. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.POST("/assignments/:assignment_id/room/join", handlers.StudentRoom.JoinRoom)

		rooms := studentAPI.Group("/rooms/:session_id")
		{
			rooms.GET("/state", pollLimiter.Middleware(), handlers.StudentRoom.GetState)
			rooms.POST("/heartbeat", pollLimiter.Middleware(), handlers.StudentRoom.Heartbeat)
			rooms.POST("/ready", handlers.StudentRoom.SetReady)
			rooms.POST("/disconnect", handlers.StudentRoom.Disconnect)
			rooms.POST("/events", handlers.StudentRoom.LogEvent)
			rooms.POST("/messages", handlers.StudentRoom.SendMessage)
			rooms.GET("/messages", handlers.StudentRoom.GetMessages)
			rooms.PATCH("/messages/read", handlers.StudentRoom.MarkMessagesRead)
			rooms.GET("/rankings", handlers.StudentRoom.GetRankings)
		}
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/rooms/:session_id/stream", handlers.WS.RoomWebSocketStream)
	}

	// ─── 3. Staff Group (JWT, collaborator or admin) ───────────────────
	staffAPI := router.Group("/api/v1/staff")
	staffAPI.Use(middleware.RequireStaffJWT(authService))
	{
		staffAPI.POST("/assignments/:assignment_id/room/open", handlers.Room.OpenRoom)

		rooms := staffAPI.Group("/rooms/:session_id")
		{
			rooms.POST("/start", handlers.Room.StartSession)
			rooms.POST("/end", handlers.Room.EndSession)
			rooms.POST("/cancel", handlers.Room.CancelSession)
			rooms.PUT("/waiting-message", handlers.Room.SetWaitingMessage)
			rooms.GET("/board", handlers.Room.GetBoard)
			rooms.GET("/monitor", handlers.Monitor.MonitorRoomSSE)
			rooms.GET("/rankings", handlers.Room.GetRankings)

			participants := rooms.Group("/participants/:participant_id")
			{
				participants.POST("/kick", handlers.Room.KickParticipant)
				participants.GET("/events", handlers.Room.GetParticipantEvents)
				participants.POST("/messages", handlers.Room.SendMessage)
				participants.GET("/messages", handlers.Room.GetThread)
				participants.PATCH("/messages/read", handlers.Room.MarkMessagesRead)
			}
		}
	}

	return router
}
