package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

// MessageRepository handles participant chat threads.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Insert appends a message to the participant's thread.
func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO messages (participant_id, sender_type, sender_id, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		m.ParticipantID, m.SenderType, m.SenderID, m.Body,
	).Scan(&m.ID, &m.CreatedAt)
}

// Thread retrieves the full thread ascending by creation time.
func (r *MessageRepository) Thread(ctx context.Context, participantID uuid.UUID) ([]model.Message, error) {
	return r.list(ctx,
		`SELECT id, participant_id, sender_type, sender_id, body, is_read, read_at, created_at
		 FROM messages
		 WHERE participant_id = $1
		 ORDER BY created_at ASC`, participantID)
}

// Recent retrieves the newest messages descending, bounded.
func (r *MessageRepository) Recent(ctx context.Context, participantID uuid.UUID, limit int) ([]model.Message, error) {
	return r.list(ctx,
		`SELECT id, participant_id, sender_type, sender_id, body, is_read, read_at, created_at
		 FROM messages
		 WHERE participant_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, participantID, limit)
}

// MarkRead flips unread messages authored by senderType to read, optionally
// restricted to specific message IDs. Returns the number of rows flipped.
func (r *MessageRepository) MarkRead(ctx context.Context, participantID uuid.UUID, senderType model.SenderType, ids []uuid.UUID, at time.Time) (int64, error) {
	query := `UPDATE messages
	 SET is_read = TRUE, read_at = $1
	 WHERE participant_id = $2 AND sender_type = $3 AND is_read = FALSE`
	args := []any{at, participantID, senderType}

	if len(ids) > 0 {
		query += ` AND id = ANY($4)`
		args = append(args, ids)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UnreadCounts returns, per participant of the session, how many messages
// authored by senderType are still unread.
func (r *MessageRepository) UnreadCounts(ctx context.Context, sessionID uuid.UUID, senderType model.SenderType) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.participant_id, COUNT(*)
		 FROM messages m
		 JOIN participants p ON m.participant_id = p.id
		 WHERE p.session_id = $1 AND m.sender_type = $2 AND m.is_read = FALSE
		 GROUP BY m.participant_id`, sessionID, senderType)
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

// DeleteBySession purges every message of every participant of the session.
func (r *MessageRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM messages
		 WHERE participant_id IN (SELECT id FROM participants WHERE session_id = $1)`,
		sessionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ParticipantID, &m.SenderType, &m.SenderID, &m.Body, &m.IsRead, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
