package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stemsi/exstem-live/internal/model"
)

func TestResolveRosterDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1, 2)

	// The direct assignee is also a group member; they must count once.
	studentID := 1
	env.assignments.assignments[assignmentID].StudentID = &studentID

	assignment := env.assignments.assignments[assignmentID]
	roster, err := env.roster.ResolveRoster(ctx, assignment)
	require.NoError(t, err)
	require.Len(t, roster, 2)
}

func TestJoinRequiresRosterMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1, 2)

	_, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	_, err = env.roster.Join(ctx, assignmentID, 42)
	require.ErrorIs(t, err, ErrNotInvited)
}

func TestJoinRequiresOpenSession(t *testing.T) {
	env := newTestEnv(t)
	assignmentID := env.seedSupervised(1)

	// Staff never opened the room.
	_, err := env.roster.Join(context.Background(), assignmentID, 1)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJoinIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	_, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	first, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)

	second, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)
	require.Equal(t, first.ParticipantID, second.ParticipantID, "rejoin must reuse the membership row")
}

func TestRejoinResetsReadiness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	joined, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)

	_, err = env.roster.SetReady(ctx, session.ID, 1)
	require.NoError(t, err)

	p, err := env.participants.GetByID(ctx, joined.ParticipantID)
	require.NoError(t, err)
	require.NotNil(t, p.ReadyAt)

	// A reconnect (page reload) invalidates the earlier confirmation.
	_, err = env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)

	p, err = env.participants.GetByID(ctx, joined.ParticipantID)
	require.NoError(t, err)
	require.Nil(t, p.ReadyAt)
}

func TestKickedStudentGetsSoftResultOnJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	_, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	joined, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)

	_, err = env.moderation.Kick(ctx, joined.ParticipantID, "Membuka tab lain", 99)
	require.NoError(t, err)

	rejoin, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err, "a kicked rejoin is a soft result, not an error")
	require.True(t, rejoin.IsKicked)
	require.Equal(t, model.SessionStatusCompleted, rejoin.SessionStatus)
	require.NotNil(t, rejoin.KickedReason)
	require.Equal(t, "Membuka tab lain", *rejoin.KickedReason)

	// The stored row was not reactivated.
	p, err := env.participants.GetByID(ctx, joined.ParticipantID)
	require.NoError(t, err)
	require.False(t, p.IsConnected)
	require.True(t, p.IsKicked)
}

func TestJoinLosingToConcurrentKickReturnsKickedResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	_, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	joined, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)

	// The kick lands after the join's kicked check but before the guarded
	// upsert, which then matches no row.
	env.participants.beforeUpsert = func() {
		env.participants.beforeUpsert = nil
		_, kickErr := env.moderation.Kick(ctx, joined.ParticipantID, "Membuka aplikasi lain", 99)
		require.NoError(t, kickErr)
	}

	rejoin, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err, "a join losing to a kick is a soft result, not an error")
	require.True(t, rejoin.IsKicked)
	require.Equal(t, model.SessionStatusCompleted, rejoin.SessionStatus)
	require.NotNil(t, rejoin.KickedReason)
	require.Equal(t, "Membuka aplikasi lain", *rejoin.KickedReason)

	p, err := env.participants.GetByID(ctx, joined.ParticipantID)
	require.NoError(t, err)
	require.False(t, p.IsConnected)
	require.True(t, p.IsKicked)
}

func TestLateJoinerGetsStartedStamp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1, 2)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	_, err = env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)

	_, err = env.room.Start(ctx, session.ID, true, 99)
	require.NoError(t, err)

	// Student 2 arrives after the start: the join flow stamps started_at.
	late, err := env.roster.Join(ctx, assignmentID, 2)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusStarted, late.SessionStatus)
	require.NotNil(t, late.TimeRemaining)

	p, err := env.participants.GetByID(ctx, late.ParticipantID)
	require.NoError(t, err)
	require.NotNil(t, p.StartedAt)
}

func TestStateReportsCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1, 2, 3)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	_, err = env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)
	_, err = env.roster.Join(ctx, assignmentID, 2)
	require.NoError(t, err)

	state, err := env.roster.State(ctx, session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusWaiting, state.SessionStatus)
	require.Equal(t, 2, state.ConnectedCount)
	require.Equal(t, 3, state.RosterSize)
	require.Nil(t, state.TimeRemaining)
}

func TestStateCollapsesForKicked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	joined, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)

	_, err = env.moderation.Kick(ctx, joined.ParticipantID, "", 99)
	require.NoError(t, err)

	state, err := env.roster.State(ctx, session.ID, 1)
	require.NoError(t, err)
	require.True(t, state.IsKicked)
	require.Equal(t, model.SessionStatusCompleted, state.SessionStatus)
	require.Zero(t, state.ConnectedCount, "a kicked view reveals nothing about the room")
}

func TestParticipantLookupUnknown(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.roster.Participant(context.Background(), uuid.New(), 1)
	require.ErrorIs(t, err, ErrParticipantNotFound)
}
