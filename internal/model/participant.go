package model

import (
	"time"

	"github.com/google/uuid"
)

// Participant is one student's membership record within a session.
// The (session_id, student_id) pair is unique; joins are idempotent upserts.
type Participant struct {
	ID                   uuid.UUID  `json:"id"`
	SessionID            uuid.UUID  `json:"session_id"`
	StudentID            int        `json:"student_id"`
	IsConnected          bool       `json:"is_connected"`
	LastHeartbeat        *time.Time `json:"last_heartbeat,omitempty"`
	ReadyAt              *time.Time `json:"ready_at,omitempty"`
	JoinedAt             time.Time  `json:"joined_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	AnsweredCount        int        `json:"answered_count"`
	IsKicked             bool       `json:"is_kicked"`
	KickedReason         *string    `json:"kicked_reason,omitempty"`
	KickedAt             *time.Time `json:"kicked_at,omitempty"`
	ResultID             *uuid.UUID `json:"result_id,omitempty"`
	// AnonymousID is a stable pseudorandom token generated once at creation.
	// Student-facing rankings display it instead of the real identity.
	AnonymousID string `json:"anonymous_id"`
}

// HeartbeatProgress carries the optional exam-progress fields a heartbeat may report.
type HeartbeatProgress struct {
	CurrentQuestionIndex *int `json:"current_question_index" binding:"omitempty,min=0"`
	AnsweredCount        *int `json:"answered_count" binding:"omitempty,min=0"`
}

// KickRequest is the payload for forcibly removing a participant.
type KickRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}
