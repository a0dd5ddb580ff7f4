package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/model"
)

// Store contracts consumed by the services. The repository package provides
// the PostgreSQL implementations; tests substitute in-memory fakes. Every
// operation is a single statement or a short transaction — no method assumes
// in-memory affinity to a previous call.

// SessionStore persists session aggregates.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	// FindActiveByAssignment returns the session in {WAITING, STARTED} for the
	// assignment, or ErrNoRows. At most one such session exists at any time.
	FindActiveByAssignment(ctx context.Context, assignmentID uuid.UUID) (*model.Session, error)
	// Create inserts a WAITING session. On a concurrent duplicate the partial
	// unique index makes the insert a no-op and ErrNoRows is returned; the
	// caller re-selects the winner.
	Create(ctx context.Context, s *model.Session) error
	// Start flips WAITING → STARTED with an optimistic status predicate.
	// Returns false when the session was not in WAITING (lost race or illegal).
	Start(ctx context.Context, id uuid.UUID, at time.Time, staffID int) (bool, error)
	// Finish atomically flips {WAITING, STARTED} → COMPLETED, disconnects every
	// participant and purges the session's messages in one transaction.
	// Returns false when no transition happened.
	Finish(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// Cancel flips {WAITING, STARTED} → CANCELLED and disconnects participants.
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	SetWaitingMessage(ctx context.Context, id uuid.UUID, message string) error
	// ListExpiredStarted returns STARTED sessions whose duration has elapsed.
	ListExpiredStarted(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// ParticipantStore persists participant records.
type ParticipantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Participant, error)
	GetBySessionAndStudent(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.Participant, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Participant, error)
	// Upsert inserts the participant or reactivates the existing row keyed by
	// (session_id, student_id): is_connected=true, ready_at reset, heartbeat
	// stamped. Kicked rows are never touched (callers check first). The
	// participant's ID and AnonymousID reflect the stored row on return.
	Upsert(ctx context.Context, p *model.Participant) error
	// Heartbeat stamps last_heartbeat/is_connected and optional progress.
	// Guarded by is_kicked = FALSE so a racing kick cannot be overwritten.
	Heartbeat(ctx context.Context, id uuid.UUID, at time.Time, progress *model.HeartbeatProgress) error
	SetReady(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkStarted stamps started_at for the given participants (session start).
	MarkStarted(ctx context.Context, ids []uuid.UUID, at time.Time) error
	// Kick is guarded by is_kicked = FALSE: the first reason wins permanently.
	Kick(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	Disconnect(ctx context.Context, id uuid.UUID) error
	// CountLiveOthers returns how many participants of the session other than
	// the given one still have a heartbeat inside the window.
	CountLiveOthers(ctx context.Context, sessionID, excludeID uuid.UUID, since time.Time) (int, error)
}

// EventStore persists the append-only anticheat log.
type EventStore interface {
	Insert(ctx context.Context, e *model.CheatingEvent) error
	// ListRecent returns the participant's events most-recent-first, bounded.
	ListRecent(ctx context.Context, participantID uuid.UUID, limit int) ([]model.CheatingEvent, error)
	// CountBySession returns event counts grouped by participant.
	CountBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]int64, error)
}

// MessageStore persists participant chat threads.
type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) error
	// Thread returns all messages ascending by creation time.
	Thread(ctx context.Context, participantID uuid.UUID) ([]model.Message, error)
	// Recent returns the newest messages descending, bounded.
	Recent(ctx context.Context, participantID uuid.UUID, limit int) ([]model.Message, error)
	// MarkRead flips unread messages authored by senderType to read. A non-empty
	// ids slice restricts the update to those messages.
	MarkRead(ctx context.Context, participantID uuid.UUID, senderType model.SenderType, ids []uuid.UUID, at time.Time) (int64, error)
	// UnreadCounts returns, per participant of the session, how many messages
	// authored by senderType are still unread.
	UnreadCounts(ctx context.Context, sessionID uuid.UUID, senderType model.SenderType) (map[uuid.UUID]int64, error)
	// DeleteBySession purges every message of every participant of the session.
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

// AssignmentProvider is the read-only view over the tables the main exam
// backend owns: assignments, simulations and group membership.
type AssignmentProvider interface {
	GetAssignment(ctx context.Context, id uuid.UUID) (*model.Assignment, error)
	GetSimulation(ctx context.Context, id uuid.UUID) (*model.Simulation, error)
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]model.StudentRef, error)
	GetStudent(ctx context.Context, id int) (*model.StudentRef, error)
}

// RankingStore reads the joined completed-participant rows for the leaderboard.
type RankingStore interface {
	// ListCompleted returns rows for participants with a completed_at and a
	// linked result, ordered by score descending.
	ListCompleted(ctx context.Context, sessionID uuid.UUID) ([]model.RankingRow, error)
}
