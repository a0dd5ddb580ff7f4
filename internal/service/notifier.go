package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
)

// MonitorNotifier publishes room activity on the per-session Redis PubSub
// channel feeding the staff monitor stream. Publishing is best-effort: a
// Redis hiccup must never fail the action that triggered the notification.
type MonitorNotifier struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewMonitorNotifier creates a new MonitorNotifier.
func NewMonitorNotifier(rdb *redis.Client, log zerolog.Logger) *MonitorNotifier {
	return &MonitorNotifier{
		rdb: rdb,
		log: log.With().Str("component", "monitor_notifier").Logger(),
	}
}

// Publish sends a typed event with extra fields to the session's monitor channel.
func (n *MonitorNotifier) Publish(ctx context.Context, sessionID uuid.UUID, eventType string, fields map[string]interface{}) {
	payload := map[string]interface{}{
		"type":       eventType,
		"session_id": sessionID.String(),
		"at":         time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Str("type", eventType).Msg("Marshal monitor event failed")
		return
	}

	channel := config.CacheKey.RoomMonitorChannel(sessionID.String())
	if err := n.rdb.Publish(ctx, channel, data).Err(); err != nil {
		n.log.Warn().Err(err).Str("type", eventType).Msg("Monitor publish failed")
	}
}
