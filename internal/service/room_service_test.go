package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stemsi/exstem-live/internal/model"
)

func TestOpenCreatesWaitingSession(t *testing.T) {
	env := newTestEnv(t)
	assignmentID := env.seedSupervised(1, 2, 3)

	session, err := env.room.Open(context.Background(), assignmentID, 99)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusWaiting, session.Status)
	require.Equal(t, assignmentID, session.AssignmentID)
}

func TestOpenIsIdempotentPerAssignment(t *testing.T) {
	env := newTestEnv(t)
	assignmentID := env.seedSupervised(1, 2)

	first, err := env.room.Open(context.Background(), assignmentID, 99)
	require.NoError(t, err)

	second, err := env.room.Open(context.Background(), assignmentID, 99)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "reopening must return the live session, never a duplicate")
}

func TestOpenRejectsInactiveAssignment(t *testing.T) {
	env := newTestEnv(t)
	assignmentID := env.seedSupervised(1)
	env.assignments.assignments[assignmentID].Status = model.AssignmentStatusClosed

	_, err := env.room.Open(context.Background(), assignmentID, 99)
	require.ErrorIs(t, err, ErrAssignmentInactive)
}

func TestOpenRejectsFreeAccessMode(t *testing.T) {
	env := newTestEnv(t)
	assignmentID := env.seedSupervised(1)
	simID := env.assignments.assignments[assignmentID].SimulationID
	env.assignments.simulations[simID].AccessMode = model.AccessModeFree

	_, err := env.room.Open(context.Background(), assignmentID, 99)
	require.ErrorIs(t, err, ErrNotSupervised)
}

func TestOpenRejectsExpiredAssignment(t *testing.T) {
	env := newTestEnv(t)
	assignmentID := env.seedSupervised(1)
	past := time.Now().Add(-time.Hour)
	env.assignments.assignments[assignmentID].EndDate = &past

	_, err := env.room.Open(context.Background(), assignmentID, 99)
	require.ErrorIs(t, err, ErrAssignmentExpired)
}

func TestStartBlockedWhenRosterIncomplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1, 2, 3)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	// Only two of three students connect.
	_, err = env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)
	_, err = env.roster.Join(ctx, assignmentID, 2)
	require.NoError(t, err)

	_, err = env.room.Start(ctx, session.ID, false, 99)
	var blocked *StartBlockedError
	require.ErrorAs(t, err, &blocked)
	require.Equal(t, 2, blocked.Connected)
	require.Equal(t, 3, blocked.Total)

	// Session stays in WAITING after the refusal.
	got, err := env.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusWaiting, got.Status)
}

func TestStartWithForce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1, 2, 3)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	joined, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)

	started, err := env.room.Start(ctx, session.ID, true, 99)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusStarted, started.Status)
	require.NotNil(t, started.ActualStartAt)

	// The live participant got started_at stamped.
	p, err := env.participants.GetByID(ctx, joined.ParticipantID)
	require.NoError(t, err)
	require.NotNil(t, p.StartedAt)
}

func TestStartWhenAllConnected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1, 2)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	_, err = env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)
	_, err = env.roster.Join(ctx, assignmentID, 2)
	require.NoError(t, err)

	started, err := env.room.Start(ctx, session.ID, false, 99)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusStarted, started.Status)
}

func TestStartRejectsNonWaitingSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	_, err = env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)
	_, err = env.room.Start(ctx, session.ID, false, 99)
	require.NoError(t, err)

	_, err = env.room.Start(ctx, session.ID, false, 99)
	require.ErrorIs(t, err, ErrSessionNotWaiting)
}

func TestEndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	first, err := env.room.End(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusCompleted, first.Status)

	second, err := env.room.End(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusCompleted, second.Status)
}

func TestEndDisconnectsParticipantsAndPurgesMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1, 2)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	j1, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)
	j2, err := env.roster.Join(ctx, assignmentID, 2)
	require.NoError(t, err)

	_, err = env.messaging.Send(ctx, j1.ParticipantID, Sender{Type: model.SenderStudent, ID: 1}, "Soal 5 error")
	require.NoError(t, err)
	_, err = env.messaging.Send(ctx, j2.ParticipantID, Sender{Type: model.SenderStaff, ID: 99}, "Tetap tenang")
	require.NoError(t, err)

	require.NoError(t, env.events.Insert(ctx, &model.CheatingEvent{ParticipantID: j1.ParticipantID, EventType: "tab_switch"}))

	_, err = env.room.Start(ctx, session.ID, false, 99)
	require.NoError(t, err)

	_, err = env.room.End(ctx, session.ID)
	require.NoError(t, err)

	// Every participant is disconnected server-side.
	parts, err := env.participants.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	for _, p := range parts {
		require.False(t, p.IsConnected)
	}

	// Every thread is gone; the cheating log survives as the audit trail.
	for _, j := range []*JoinResult{j1, j2} {
		msgs, err := env.messages.Thread(ctx, j.ParticipantID)
		require.NoError(t, err)
		require.Empty(t, msgs)
	}
	require.Len(t, env.events.events, 1)
}

func TestEndRejectsCancelledSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	_, err = env.room.Cancel(ctx, session.ID, 99)
	require.NoError(t, err)

	_, err = env.room.End(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestEndUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.room.End(context.Background(), uuid.New())
	require.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestOpenAfterEndCreatesFreshSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	first, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	_, err = env.room.End(ctx, first.ID)
	require.NoError(t, err)

	second, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID, "a completed session is history; reopening starts a new run")
	require.Equal(t, model.SessionStatusWaiting, second.Status)
}

func TestSetWaitingMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1)

	session, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)

	require.NoError(t, env.room.SetWaitingMessage(ctx, session.ID, "Mulai dalam 5 menit"))

	got, err := env.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got.WaitingMessage)
	require.Equal(t, "Mulai dalam 5 menit", *got.WaitingMessage)
}
