package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

// CheatingEventRepository handles the append-only anticheat log.
type CheatingEventRepository struct {
	pool *pgxpool.Pool
}

// NewCheatingEventRepository creates a new CheatingEventRepository.
func NewCheatingEventRepository(pool *pgxpool.Pool) *CheatingEventRepository {
	return &CheatingEventRepository{pool: pool}
}

// Insert appends a single event. The bulk path lives in the event worker.
func (r *CheatingEventRepository) Insert(ctx context.Context, e *model.CheatingEvent) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO cheating_events (participant_id, event_type, description, metadata, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		 RETURNING id, created_at`,
		e.ParticipantID, e.EventType, e.Description, e.Metadata, nullableTime(e.CreatedAt),
	).Scan(&e.ID, &e.CreatedAt)
}

// ListRecent retrieves the participant's newest events first, bounded.
func (r *CheatingEventRepository) ListRecent(ctx context.Context, participantID uuid.UUID, limit int) ([]model.CheatingEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, participant_id, event_type, description, metadata, created_at
		 FROM cheating_events
		 WHERE participant_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, participantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.CheatingEvent
	for rows.Next() {
		var e model.CheatingEvent
		if err := rows.Scan(&e.ID, &e.ParticipantID, &e.EventType, &e.Description, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountBySession returns event counts grouped by participant.
func (r *CheatingEventRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.participant_id, COUNT(*)
		 FROM cheating_events e
		 JOIN participants p ON e.participant_id = p.id
		 WHERE p.session_id = $1
		 GROUP BY e.participant_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var pid uuid.UUID
		var count int64
		if err := rows.Scan(&pid, &count); err != nil {
			return nil, err
		}
		counts[pid] = count
	}
	return counts, rows.Err()
}

// nullableTime maps the zero time to NULL so the column default applies.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
