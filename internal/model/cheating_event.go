package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CheatingEvent is an immutable record of a suspicious client-observed behavior
// (tab switch, window blur, copy attempt, ...). Events are append-only and form
// the audit trail of a session — they are never purged, unlike messages.
type CheatingEvent struct {
	ID            uuid.UUID       `json:"id"`
	ParticipantID uuid.UUID       `json:"participant_id"`
	EventType     string          `json:"event_type"`
	Description   *string         `json:"description,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LogEventRequest is the payload for reporting a cheating event.
type LogEventRequest struct {
	EventType   string          `json:"event_type" binding:"required,min=2,max=64"`
	Description string          `json:"description" binding:"max=500"`
	Metadata    json.RawMessage `json:"metadata" binding:"omitempty"`
}
