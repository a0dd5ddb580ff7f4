package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

// rankingCacheTTL bounds staleness of the cached raw rows. Completed results
// only change when a late scorer callback lands, so a short TTL is enough.
const rankingCacheTTL = 30 * time.Second

// RankingService derives the post-exam leaderboard. The query joins through
// real identities; anonymization is applied when shaping the output for a
// student requester, never in storage.
type RankingService struct {
	sessions SessionStore
	rankings RankingStore
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewRankingService creates a new RankingService.
func NewRankingService(sessions SessionStore, rankings RankingStore, rdb *redis.Client, log zerolog.Logger) *RankingService {
	return &RankingService{
		sessions: sessions,
		rankings: rankings,
		rdb:      rdb,
		log:      log.With().Str("component", "ranking_service").Logger(),
	}
}

// Requester identifies who is asking for the leaderboard.
type Requester struct {
	Role      Role
	StudentID int
}

// Rankings returns the leaderboard: completed participants with a linked
// result, score descending, position = rank + 1. Staff see real names. A
// student sees their own name on their own row only; every other row shows
// an opaque label derived from that participant's stored anonymous token,
// structurally unrelated to the real identity.
func (s *RankingService) Rankings(ctx context.Context, sessionID uuid.UUID, requester Requester) ([]model.RankingEntry, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.loadRows(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	entries := make([]model.RankingEntry, 0, len(rows))
	for i, row := range rows {
		entry := model.RankingEntry{
			Position: i + 1,
			Score:    row.Score,
		}

		switch {
		case requester.Role.IsStaff():
			entry.DisplayName = row.StudentName
		case row.StudentID == requester.StudentID:
			entry.DisplayName = row.StudentName
			entry.IsSelf = true
		default:
			entry.DisplayName = anonymousLabel(row.AnonymousID)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// loadRows fetches the raw joined rows, cached briefly in Redis. The cache
// holds unshaped rows: the per-requester anonymization always runs on top.
func (s *RankingService) loadRows(ctx context.Context, sessionID uuid.UUID) ([]model.RankingRow, error) {
	key := config.CacheKey.RoomRankingKey(sessionID.String())

	if cached, err := s.rdb.Get(ctx, key).Result(); err == nil {
		var rows []model.RankingRow
		if err := json.Unmarshal([]byte(cached), &rows); err == nil {
			return rows, nil
		}
		// Corrupt cache entry: fall through to the store.
	}

	rows, err := s.rankings.ListCompleted(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}

	if data, err := json.Marshal(rows); err == nil {
		if err := s.rdb.Set(ctx, key, data, rankingCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Ranking cache write failed")
		}
	}

	return rows, nil
}

// anonymousLabel renders the student-facing pseudonym for a row.
func anonymousLabel(anonymousID string) string {
	token := anonymousID
	if len(token) > 8 {
		token = token[:8]
	}
	return "Peserta-" + strings.ToUpper(token)
}
