package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

// RankingRepository reads the joined leaderboard rows. The join goes through
// real student identities; anonymization is the ranking service's concern.
type RankingRepository struct {
	pool *pgxpool.Pool
}

// NewRankingRepository creates a new RankingRepository.
func NewRankingRepository(pool *pgxpool.Pool) *RankingRepository {
	return &RankingRepository{pool: pool}
}

// ListCompleted returns the session's completed participants with a linked
// scorer result, ordered by score descending. Ties break on completion time
// so positions stay stable across reads.
func (r *RankingRepository) ListCompleted(ctx context.Context, sessionID uuid.UUID) ([]model.RankingRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, s.id, s.name, p.anonymous_id, res.score
		 FROM participants p
		 JOIN students s ON p.student_id = s.id
		 JOIN results res ON p.result_id = res.id
		 WHERE p.session_id = $1 AND p.completed_at IS NOT NULL
		 ORDER BY res.score DESC, p.completed_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.RankingRow
	for rows.Next() {
		var row model.RankingRow
		if err := rows.Scan(&row.ParticipantID, &row.StudentID, &row.StudentName, &row.AnonymousID, &row.Score); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
