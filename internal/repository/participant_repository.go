package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

const participantColumns = `id, session_id, student_id, is_connected, last_heartbeat,
	 ready_at, joined_at, started_at, completed_at, current_question_index,
	 answered_count, is_kicked, kicked_reason, kicked_at, result_id, anonymous_id`

// ParticipantRepository handles participant data access.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// GetByID retrieves a participant by its ID.
func (r *ParticipantRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Participant, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
}

// GetBySessionAndStudent retrieves a participant by the unique
// (session_id, student_id) pair.
func (r *ParticipantRepository) GetBySessionAndStudent(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.Participant, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+participantColumns+`
		 FROM participants
		 WHERE session_id = $1 AND student_id = $2`, sessionID, studentID))
}

// ListBySession retrieves all participants of a session.
func (r *ParticipantRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+participantColumns+`
		 FROM participants
		 WHERE session_id = $1
		 ORDER BY joined_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(
			&p.ID, &p.SessionID, &p.StudentID, &p.IsConnected, &p.LastHeartbeat,
			&p.ReadyAt, &p.JoinedAt, &p.StartedAt, &p.CompletedAt, &p.CurrentQuestionIndex,
			&p.AnsweredCount, &p.IsKicked, &p.KickedReason, &p.KickedAt, &p.ResultID, &p.AnonymousID,
		); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// Upsert inserts a participant or reactivates the existing row on conflict:
// the reconnect semantics set is_connected, stamp the heartbeat, clear
// readiness and keep started_at once set. The kicked guard on the update arm
// means a kicked row is left untouched (callers check is_kicked first; this
// guard closes the race with a concurrent kick). The stored id and
// anonymous_id are scanned back into p.
func (r *ParticipantRepository) Upsert(ctx context.Context, p *model.Participant) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO participants
		   (session_id, student_id, is_connected, last_heartbeat, joined_at, started_at, anonymous_id)
		 VALUES ($1, $2, TRUE, $3, $4, $5, $6)
		 ON CONFLICT (session_id, student_id) DO UPDATE
		 SET is_connected = TRUE,
		     last_heartbeat = EXCLUDED.last_heartbeat,
		     ready_at = NULL,
		     started_at = COALESCE(participants.started_at, EXCLUDED.started_at)
		 WHERE participants.is_kicked = FALSE
		 RETURNING id, joined_at, anonymous_id`,
		p.SessionID, p.StudentID, p.LastHeartbeat, p.JoinedAt, p.StartedAt, p.AnonymousID,
	).Scan(&p.ID, &p.JoinedAt, &p.AnonymousID)
}

// Heartbeat stamps liveness and optional progress. Last write wins; the
// kicked guard keeps a racing kick from being resuscitated.
func (r *ParticipantRepository) Heartbeat(ctx context.Context, id uuid.UUID, at time.Time, progress *model.HeartbeatProgress) error {
	var questionIndex, answered *int
	if progress != nil {
		questionIndex = progress.CurrentQuestionIndex
		answered = progress.AnsweredCount
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE participants
		 SET is_connected = TRUE,
		     last_heartbeat = $1,
		     current_question_index = COALESCE($2, current_question_index),
		     answered_count = COALESCE($3, answered_count)
		 WHERE id = $4 AND is_kicked = FALSE`,
		at, questionIndex, answered, id)
	return err
}

// SetReady stamps the readiness confirmation.
func (r *ParticipantRepository) SetReady(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participants SET ready_at = $1 WHERE id = $2 AND is_kicked = FALSE`,
		at, id)
	return err
}

// MarkStarted stamps started_at for the given participants at session start.
func (r *ParticipantRepository) MarkStarted(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participants SET started_at = $1 WHERE id = ANY($2) AND started_at IS NULL`,
		at, ids)
	return err
}

// Kick flags the participant permanently. The is_kicked guard makes the
// first kick win: a second call never overwrites the original reason.
func (r *ParticipantRepository) Kick(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participants
		 SET is_kicked = TRUE, kicked_reason = $1, kicked_at = $2, is_connected = FALSE
		 WHERE id = $3 AND is_kicked = FALSE`,
		reason, at, id)
	return err
}

// Disconnect clears the stored connected flag.
func (r *ParticipantRepository) Disconnect(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participants SET is_connected = FALSE WHERE id = $1`, id)
	return err
}

// CountLiveOthers counts the session's other participants with a heartbeat
// newer than the liveness cutoff.
func (r *ParticipantRepository) CountLiveOthers(ctx context.Context, sessionID, excludeID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM participants
		 WHERE session_id = $1 AND id <> $2 AND is_connected = TRUE AND last_heartbeat >= $3`,
		sessionID, excludeID, since).Scan(&n)
	return n, err
}

func (r *ParticipantRepository) scanOne(row pgx.Row) (*model.Participant, error) {
	p := &model.Participant{}
	err := row.Scan(
		&p.ID, &p.SessionID, &p.StudentID, &p.IsConnected, &p.LastHeartbeat,
		&p.ReadyAt, &p.JoinedAt, &p.StartedAt, &p.CompletedAt, &p.CurrentQuestionIndex,
		&p.AnsweredCount, &p.IsKicked, &p.KickedReason, &p.KickedAt, &p.ResultID, &p.AnonymousID,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
