package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates virtual room session states.
type SessionStatus string

const (
	SessionStatusWaiting   SessionStatus = "WAITING"
	SessionStatusStarted   SessionStatus = "STARTED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Session represents one supervised exam run bound to exactly one assignment.
// At most one session with status WAITING or STARTED exists per assignment;
// completed and cancelled sessions are kept as the historical record for rankings.
type Session struct {
	ID               uuid.UUID     `json:"id"`
	SimulationID     uuid.UUID     `json:"simulation_id"`
	AssignmentID     uuid.UUID     `json:"assignment_id"`
	Status           SessionStatus `json:"status"`
	ScheduledStartAt *time.Time    `json:"scheduled_start_at,omitempty"`
	ActualStartAt    *time.Time    `json:"actual_start_at,omitempty"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
	StartedByID      *int          `json:"started_by_id,omitempty"`
	WaitingMessage   *string       `json:"waiting_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsActive reports whether the session still accepts participant traffic.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusWaiting || s.Status == SessionStatusStarted
}

// StartSessionRequest is the payload for a supervisor starting a session.
type StartSessionRequest struct {
	Force bool `json:"force"`
}

// WaitingMessageRequest is the payload for updating the waiting room banner.
type WaitingMessageRequest struct {
	Message string `json:"message" binding:"max=500"`
}
