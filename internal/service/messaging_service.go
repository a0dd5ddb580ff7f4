package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/model"
)

// RecentMessageLimit bounds the "recent" thread summary.
const RecentMessageLimit = 10

// Sender identifies the acting party of a messaging call.
type Sender struct {
	Type model.SenderType
	ID   int
}

// MessagingService runs the two-party chat thread between a participant's
// student and the supervising staff. Threads live only as long as somebody
// might still be looking at the screen: they are purged when the session
// ends and again when the last viewer of a completed session disconnects.
type MessagingService struct {
	participants ParticipantStore
	messages     MessageStore
	notifier     *MonitorNotifier
	log          zerolog.Logger
}

// NewMessagingService creates a new MessagingService.
func NewMessagingService(
	participants ParticipantStore,
	messages MessageStore,
	notifier *MonitorNotifier,
	log zerolog.Logger,
) *MessagingService {
	return &MessagingService{
		participants: participants,
		messages:     messages,
		notifier:     notifier,
		log:          log.With().Str("component", "messaging_service").Logger(),
	}
}

// Send posts a message into the participant's thread. A student may only
// write into their own thread; any staff member may write into any thread of
// a session they supervise.
func (s *MessagingService) Send(ctx context.Context, participantID uuid.UUID, sender Sender, body string) (*model.Message, error) {
	p, err := s.getParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	if sender.Type == model.SenderStudent && sender.ID != p.StudentID {
		return nil, ErrNotThreadOwner
	}

	msg := &model.Message{
		ParticipantID: participantID,
		SenderType:    sender.Type,
		SenderID:      sender.ID,
		Body:          body,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	s.notifier.Publish(ctx, p.SessionID, "message", map[string]interface{}{
		"participant_id": participantID.String(),
		"sender_type":    string(sender.Type),
	})

	return msg, nil
}

// Thread returns the full thread ascending for display. Students can only
// read their own thread.
func (s *MessagingService) Thread(ctx context.Context, participantID uuid.UUID, requester Sender) ([]model.Message, error) {
	p, err := s.getParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if requester.Type == model.SenderStudent && requester.ID != p.StudentID {
		return nil, ErrNotThreadOwner
	}
	msgs, err := s.messages.Thread(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return msgs, nil
}

// Recent returns the newest messages of the thread, newest first, bounded.
func (s *MessagingService) Recent(ctx context.Context, participantID uuid.UUID) ([]model.Message, error) {
	if _, err := s.getParticipant(ctx, participantID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.Recent(ctx, participantID, RecentMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	return msgs, nil
}

// MarkRead flips the messages addressed to the caller to read: staff mark
// student-authored messages, students mark staff-authored ones. A caller can
// never mark their own sent messages.
func (s *MessagingService) MarkRead(ctx context.Context, participantID uuid.UUID, caller Sender, messageIDs []uuid.UUID) (int64, error) {
	p, err := s.getParticipant(ctx, participantID)
	if err != nil {
		return 0, err
	}
	if caller.Type == model.SenderStudent && caller.ID != p.StudentID {
		return 0, ErrNotThreadOwner
	}

	// The readable direction is the opposite of the caller's side.
	authored := model.SenderStaff
	if caller.Type == model.SenderStaff {
		authored = model.SenderStudent
	}

	n, err := s.messages.MarkRead(ctx, participantID, authored, messageIDs, time.Now())
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

// PurgeSession deletes every message of the session. Invoked inside the end
// transaction by the store and again from the disconnect path when a
// completed session loses its last live viewer.
func (s *MessagingService) PurgeSession(ctx context.Context, sessionID uuid.UUID) error {
	n, err := s.messages.DeleteBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("purge messages: %w", err)
	}
	if n > 0 {
		s.log.Info().
			Str("session_id", sessionID.String()).
			Int64("purged", n).
			Msg("Session messages purged")
	}
	return nil
}

func (s *MessagingService) getParticipant(ctx context.Context, participantID uuid.UUID) (*model.Participant, error) {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}
