package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stemsi/exstem-live/internal/model"
)

func seedRankedSession(t *testing.T, env *testEnv) uuid.UUID {
	t.Helper()
	assignmentID := env.seedSupervised(1, 2, 3)
	session, err := env.room.Open(context.Background(), assignmentID, 99)
	require.NoError(t, err)

	env.rankings.rows = []model.RankingRow{
		{ParticipantID: uuid.New(), StudentID: 2, StudentName: "Budi", AnonymousID: "a1b2c3d4e5f6", Score: 95},
		{ParticipantID: uuid.New(), StudentID: 1, StudentName: "Ani", AnonymousID: "0f0e0d0c0b0a", Score: 80},
		{ParticipantID: uuid.New(), StudentID: 3, StudentName: "Citra", AnonymousID: "deadbeef0102", Score: 60},
	}
	return session.ID
}

func TestRankingsStaffSeesRealNames(t *testing.T) {
	env := newTestEnv(t)
	sessionID := seedRankedSession(t, env)

	entries, err := env.ranking.Rankings(context.Background(), sessionID, Requester{Role: RoleCollaborator})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, 1, entries[0].Position)
	require.Equal(t, "Budi", entries[0].DisplayName)
	require.Equal(t, 95.0, entries[0].Score)
	require.Equal(t, "Ani", entries[1].DisplayName)
	require.Equal(t, "Citra", entries[2].DisplayName)
}

func TestRankingsStudentSeesOnlySelf(t *testing.T) {
	env := newTestEnv(t)
	sessionID := seedRankedSession(t, env)

	entries, err := env.ranking.Rankings(context.Background(), sessionID, Requester{Role: RoleStudent, StudentID: 1})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Position 2 is the requester: real name, flagged as self.
	require.Equal(t, "Ani", entries[1].DisplayName)
	require.True(t, entries[1].IsSelf)

	// Every other row is the opaque label; no real name leaks.
	require.Equal(t, "Peserta-A1B2C3D4", entries[0].DisplayName)
	require.False(t, entries[0].IsSelf)
	require.Equal(t, "Peserta-DEADBEEF", entries[2].DisplayName)

	for _, e := range entries {
		if e.IsSelf {
			continue
		}
		require.NotContains(t, []string{"Budi", "Citra"}, e.DisplayName)
		require.True(t, strings.HasPrefix(e.DisplayName, "Peserta-"))
	}
}

func TestRankingsPositionsFollowScoreOrder(t *testing.T) {
	env := newTestEnv(t)
	sessionID := seedRankedSession(t, env)

	entries, err := env.ranking.Rankings(context.Background(), sessionID, Requester{Role: RoleAdmin})
	require.NoError(t, err)
	for i, e := range entries {
		require.Equal(t, i+1, e.Position)
		if i > 0 {
			require.GreaterOrEqual(t, entries[i-1].Score, e.Score)
		}
	}
}

func TestRankingsUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ranking.Rankings(context.Background(), uuid.New(), Requester{Role: RoleAdmin})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRankingsEmptyWhenNobodyCompleted(t *testing.T) {
	env := newTestEnv(t)
	assignmentID := env.seedSupervised(1)
	session, err := env.room.Open(context.Background(), assignmentID, 99)
	require.NoError(t, err)

	entries, err := env.ranking.Rankings(context.Background(), session.ID, Requester{Role: RoleAdmin})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRankingsCachedRowsStayUnshaped(t *testing.T) {
	env := newTestEnv(t)
	sessionID := seedRankedSession(t, env)
	ctx := context.Background()

	// First call populates the cache with raw rows.
	_, err := env.ranking.Rankings(ctx, sessionID, Requester{Role: RoleAdmin})
	require.NoError(t, err)

	// Swap the backing rows; the cached result must still serve, and the
	// student shaping must run on top of the cached raw rows.
	env.rankings.rows = nil

	entries, err := env.ranking.Rankings(ctx, sessionID, Requester{Role: RoleStudent, StudentID: 2})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.True(t, entries[0].IsSelf)
	require.Equal(t, "Budi", entries[0].DisplayName)
	require.Equal(t, "Peserta-0F0E0D0C", entries[1].DisplayName)
}

func TestAnonymousLabel(t *testing.T) {
	require.Equal(t, "Peserta-A1B2C3D4", anonymousLabel("a1b2c3d4e5f6"))
	require.Equal(t, "Peserta-AB", anonymousLabel("ab"))
}
