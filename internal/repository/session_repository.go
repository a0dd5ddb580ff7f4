package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

const sessionColumns = `id, simulation_id, assignment_id, status, scheduled_start_at,
	 actual_start_at, ended_at, started_by_id, waiting_message, created_at, updated_at`

// SessionRepository handles session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// FindActiveByAssignment retrieves the WAITING/STARTED session for an
// assignment. A partial unique index guarantees at most one exists.
func (r *SessionRepository) FindActiveByAssignment(ctx context.Context, assignmentID uuid.UUID) (*model.Session, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE assignment_id = $1 AND status IN ('WAITING', 'STARTED')`, assignmentID))
}

// Create inserts a new WAITING session. A concurrent create for the same
// assignment hits the partial unique index: the insert becomes a no-op and
// pgx.ErrNoRows is returned so the caller can re-select the winner.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO sessions (simulation_id, assignment_id, status, scheduled_start_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (assignment_id) WHERE status IN ('WAITING', 'STARTED') DO NOTHING
		 RETURNING id, created_at, updated_at`,
		s.SimulationID, s.AssignmentID, model.SessionStatusWaiting, s.ScheduledStartAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// Start flips WAITING → STARTED with an optimistic status predicate so that
// concurrent starts resolve to one winner. Returns false when no row changed.
func (r *SessionRepository) Start(ctx context.Context, id uuid.UUID, at time.Time, staffID int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET status = $1, actual_start_at = $2, started_by_id = $3, updated_at = $2
		 WHERE id = $4 AND status = $5`,
		model.SessionStatusStarted, at, staffID, id, model.SessionStatusWaiting)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Finish completes a session atomically: the status flip, the mass
// disconnect and the message purge are one transaction. Partial application
// (disconnect without purge) can never be observed.
func (r *SessionRepository) Finish(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE sessions
		 SET status = $1, ended_at = $2, updated_at = $2
		 WHERE id = $3 AND status IN ('WAITING', 'STARTED')`,
		model.SessionStatusCompleted, at, id)
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE participants SET is_connected = FALSE WHERE session_id = $1`, id); err != nil {
		return false, fmt.Errorf("disconnect participants: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM messages
		 WHERE participant_id IN (SELECT id FROM participants WHERE session_id = $1)`, id); err != nil {
		return false, fmt.Errorf("purge messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Cancel aborts a live session and disconnects its participants.
func (r *SessionRepository) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE sessions
		 SET status = $1, ended_at = $2, updated_at = $2
		 WHERE id = $3 AND status IN ('WAITING', 'STARTED')`,
		model.SessionStatusCancelled, at, id)
	if err != nil {
		return false, fmt.Errorf("cancel session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE participants SET is_connected = FALSE WHERE session_id = $1`, id); err != nil {
		return false, fmt.Errorf("disconnect participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// SetWaitingMessage updates the waiting room banner text.
func (r *SessionRepository) SetWaitingMessage(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET waiting_message = $1, updated_at = NOW() WHERE id = $2`,
		message, id)
	return err
}

// ListExpiredStarted returns STARTED sessions that ran past their simulation
// duration. Used by the expiry worker to auto-end overdue exams.
func (r *SessionRepository) ListExpiredStarted(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id
		 FROM sessions s
		 JOIN simulations sim ON s.simulation_id = sim.id
		 WHERE s.status = 'STARTED'
		   AND s.actual_start_at + (sim.duration_minutes * INTERVAL '1 minute') < $1`,
		now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SessionRepository) scanOne(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(
		&s.ID, &s.SimulationID, &s.AssignmentID, &s.Status, &s.ScheduledStartAt,
		&s.ActualStartAt, &s.EndedAt, &s.StartedByID, &s.WaitingMessage,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
