package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stemsi/exstem-live/internal/model"
)

func (env *testEnv) joinOne(t *testing.T, studentID int) *JoinResult {
	t.Helper()
	ctx := context.Background()
	assignmentID := env.seedSupervised(studentID)
	_, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)
	joined, err := env.roster.Join(ctx, assignmentID, studentID)
	require.NoError(t, err)
	return joined
}

func TestStudentCannotWriteForeignThread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	joined := env.joinOne(t, 1)

	// Student 2 tries to post into student 1's thread.
	_, err := env.messaging.Send(ctx, joined.ParticipantID, Sender{Type: model.SenderStudent, ID: 2}, "Halo")
	require.ErrorIs(t, err, ErrNotThreadOwner)

	_, err = env.messaging.Thread(ctx, joined.ParticipantID, Sender{Type: model.SenderStudent, ID: 2})
	require.ErrorIs(t, err, ErrNotThreadOwner)
}

func TestStaffCanWriteAnyThread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	joined := env.joinOne(t, 1)

	msg, err := env.messaging.Send(ctx, joined.ParticipantID, Sender{Type: model.SenderStaff, ID: 99}, "Kerjakan dengan tenang")
	require.NoError(t, err)
	require.Equal(t, model.SenderStaff, msg.SenderType)
	require.Equal(t, 99, msg.SenderID)
	require.False(t, msg.IsRead)
}

func TestThreadOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	joined := env.joinOne(t, 1)

	student := Sender{Type: model.SenderStudent, ID: 1}
	staff := Sender{Type: model.SenderStaff, ID: 99}

	_, err := env.messaging.Send(ctx, joined.ParticipantID, student, "Soal 3 tidak tampil")
	require.NoError(t, err)
	_, err = env.messaging.Send(ctx, joined.ParticipantID, staff, "Coba muat ulang")
	require.NoError(t, err)
	_, err = env.messaging.Send(ctx, joined.ParticipantID, student, "Sudah bisa, terima kasih")
	require.NoError(t, err)

	msgs, err := env.messaging.Thread(ctx, joined.ParticipantID, student)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "Soal 3 tidak tampil", msgs[0].Body)
	require.Equal(t, "Sudah bisa, terima kasih", msgs[2].Body)
}

func TestMarkReadFlipsOppositeDirectionOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	joined := env.joinOne(t, 1)

	student := Sender{Type: model.SenderStudent, ID: 1}
	staff := Sender{Type: model.SenderStaff, ID: 99}

	_, err := env.messaging.Send(ctx, joined.ParticipantID, student, "Pertanyaan")
	require.NoError(t, err)
	_, err = env.messaging.Send(ctx, joined.ParticipantID, staff, "Jawaban")
	require.NoError(t, err)

	// The student marks read: only the staff-authored message flips.
	n, err := env.messaging.MarkRead(ctx, joined.ParticipantID, student, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	msgs, err := env.messaging.Thread(ctx, joined.ParticipantID, student)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.SenderType == model.SenderStaff {
			require.True(t, m.IsRead)
		} else {
			require.False(t, m.IsRead, "a caller can never mark their own messages")
		}
	}

	// The staff side mirrors it.
	n, err = env.messaging.MarkRead(ctx, joined.ParticipantID, staff, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestPurgeSessionRemovesAllThreads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assignmentID := env.seedSupervised(1, 2)

	_, err := env.room.Open(ctx, assignmentID, 99)
	require.NoError(t, err)
	j1, err := env.roster.Join(ctx, assignmentID, 1)
	require.NoError(t, err)
	j2, err := env.roster.Join(ctx, assignmentID, 2)
	require.NoError(t, err)

	_, err = env.messaging.Send(ctx, j1.ParticipantID, Sender{Type: model.SenderStudent, ID: 1}, "a")
	require.NoError(t, err)
	_, err = env.messaging.Send(ctx, j2.ParticipantID, Sender{Type: model.SenderStudent, ID: 2}, "b")
	require.NoError(t, err)

	require.NoError(t, env.messaging.PurgeSession(ctx, j1.SessionID))

	for _, pid := range []struct {
		id int
		j  *JoinResult
	}{{1, j1}, {2, j2}} {
		msgs, err := env.messaging.Thread(ctx, pid.j.ParticipantID, Sender{Type: model.SenderStudent, ID: pid.id})
		require.NoError(t, err)
		require.Empty(t, msgs)
	}
}
