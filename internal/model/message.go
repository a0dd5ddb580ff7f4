package model

import (
	"time"

	"github.com/google/uuid"
)

// SenderType distinguishes the two parties of a participant's message thread.
type SenderType string

const (
	SenderStaff   SenderType = "STAFF"
	SenderStudent SenderType = "STUDENT"
)

// Message is one chat entry in a participant's two-party thread. Messages are
// exam-time operational chat, not a durable audit trail: they are purged when
// the session completes and the last participant disconnects.
type Message struct {
	ID            uuid.UUID  `json:"id"`
	ParticipantID uuid.UUID  `json:"participant_id"`
	SenderType    SenderType `json:"sender_type"`
	SenderID      int        `json:"sender_id"`
	Body          string     `json:"body"`
	IsRead        bool       `json:"is_read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SendMessageRequest is the payload for posting a chat message.
type SendMessageRequest struct {
	Body string `json:"body" binding:"required,min=1,max=2000"`
}

// MarkReadRequest optionally restricts a mark-read call to specific messages.
// An empty list marks everything addressed to the caller as read.
type MarkReadRequest struct {
	MessageIDs []uuid.UUID `json:"message_ids" binding:"omitempty"`
}
