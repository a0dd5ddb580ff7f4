package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

// RecentEventLimit bounds the per-participant event list on the dashboard.
const RecentEventLimit = 10

// DefaultKickReason is used when staff kick without giving a reason.
const DefaultKickReason = "Dikeluarkan oleh pengawas"

// ModerationService owns the anticheat log and forcible removal, and builds
// the staff monitoring dashboard view.
type ModerationService struct {
	sessions     SessionStore
	participants ParticipantStore
	events       EventStore
	messages     MessageStore
	presence     *PresenceService
	notifier     *MonitorNotifier
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewModerationService creates a new ModerationService.
func NewModerationService(
	sessions SessionStore,
	participants ParticipantStore,
	events EventStore,
	messages MessageStore,
	presence *PresenceService,
	notifier *MonitorNotifier,
	rdb *redis.Client,
	log zerolog.Logger,
) *ModerationService {
	return &ModerationService{
		sessions:     sessions,
		participants: participants,
		events:       events,
		messages:     messages,
		presence:     presence,
		notifier:     notifier,
		rdb:          rdb,
		log:          log.With().Str("component", "moderation_service").Logger(),
	}
}

// queuedEvent is the JSON shape pushed to the persist queue. The event worker
// decodes the same shape on the other side.
type queuedEvent struct {
	ParticipantID string `json:"participant_id"`
	EventType     string `json:"event_type"`
	Description   string `json:"description,omitempty"`
	Metadata      string `json:"metadata,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// LogEvent appends a cheating event for the participant. The participant must
// exist; beyond that nothing blocks the append — evidence is captured even
// post-kick or post-completion. Persistence is best-effort through the Redis
// queue with a direct insert fallback; a storage failure is logged, never
// surfaced, so event capture can never fail a caller's broader action.
func (s *ModerationService) LogEvent(ctx context.Context, participantID uuid.UUID, eventType, description string, metadata json.RawMessage) error {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrParticipantNotFound
		}
		return fmt.Errorf("get participant: %w", err)
	}

	now := time.Now()
	payload, _ := json.Marshal(queuedEvent{
		ParticipantID: participantID.String(),
		EventType:     eventType,
		Description:   description,
		Metadata:      string(metadata),
		Timestamp:     now.Unix(),
	})

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistEventsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Event queue unavailable, falling back to direct insert")

		event := &model.CheatingEvent{
			ParticipantID: participantID,
			EventType:     eventType,
			Metadata:      metadata,
			CreatedAt:     now,
		}
		if description != "" {
			event.Description = &description
		}
		if err := s.events.Insert(ctx, event); err != nil {
			s.log.Error().Err(err).
				Str("participant_id", participantID.String()).
				Str("event_type", eventType).
				Msg("Cheating event lost: queue and direct insert both failed")
		}
	}

	s.notifier.Publish(ctx, p.SessionID, "cheat", map[string]interface{}{
		"participant_id": participantID.String(),
		"student_id":     p.StudentID,
		"event_type":     eventType,
	})

	return nil
}

// Kick permanently removes a participant from the session: no unkick exists
// and the join/heartbeat/ready flows all honor the flag afterwards. The kick
// takes effect on the student's next poll, bounded by the heartbeat interval.
// Kicking an already-kicked participant keeps the original reason.
func (s *ModerationService) Kick(ctx context.Context, participantID uuid.UUID, reason string, staffID int) (*model.Participant, error) {
	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}

	if p.IsKicked {
		return p, nil
	}

	if reason == "" {
		reason = DefaultKickReason
	}

	now := time.Now()
	if err := s.participants.Kick(ctx, participantID, reason, now); err != nil {
		return nil, fmt.Errorf("kick participant: %w", err)
	}

	p.IsKicked = true
	p.IsConnected = false
	p.KickedReason = &reason
	p.KickedAt = &now

	s.log.Info().
		Str("session_id", p.SessionID.String()).
		Str("participant_id", participantID.String()).
		Int("student_id", p.StudentID).
		Int("staff_id", staffID).
		Str("reason", reason).
		Msg("Participant kicked")

	s.notifier.Publish(ctx, p.SessionID, "kick", map[string]interface{}{
		"participant_id": participantID.String(),
		"student_id":     p.StudentID,
		"reason":         reason,
	})

	return p, nil
}

// Events lists a participant's cheating events most-recent-first for staff.
func (s *ModerationService) Events(ctx context.Context, participantID uuid.UUID, limit int) ([]model.CheatingEvent, error) {
	if _, err := s.participants.GetByID(ctx, participantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if limit <= 0 {
		limit = RecentEventLimit
	}
	events, err := s.events.ListRecent(ctx, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// BoardRow is one participant on the staff monitoring dashboard.
type BoardRow struct {
	ParticipantID        uuid.UUID             `json:"participant_id"`
	StudentID            int                   `json:"student_id"`
	IsLive               bool                  `json:"is_live"`
	IsReady              bool                  `json:"is_ready"`
	IsKicked             bool                  `json:"is_kicked"`
	KickedReason         *string               `json:"kicked_reason,omitempty"`
	CurrentQuestionIndex int                   `json:"current_question_index"`
	AnsweredCount        int                   `json:"answered_count"`
	CheatCount           int64                 `json:"cheat_count"`
	UnreadMessages       int64                 `json:"unread_messages"`
	RecentEvents         []model.CheatingEvent `json:"recent_events"`
	LastHeartbeat        *time.Time            `json:"last_heartbeat,omitempty"`
}

// Board is the monitoring dashboard snapshot for a session.
type Board struct {
	SessionID      uuid.UUID           `json:"session_id"`
	SessionStatus  model.SessionStatus `json:"session_status"`
	ConnectedCount int                 `json:"connected_count"`
	ReadyCount     int                 `json:"ready_count"`
	KickedCount    int                 `json:"kicked_count"`
	TotalCheats    int64               `json:"total_cheats"`
	Participants   []BoardRow          `json:"participants"`
}

// Board recomputes the whole staff dashboard from store state: derived
// liveness, readiness, kick status, recent events and unread counts. There
// is no separate cache of truth to drift from.
func (s *ModerationService) Board(ctx context.Context, sessionID uuid.UUID) (*Board, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	parts, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	// Cheat counts and unread counts are decoration; the board is still
	// useful when either lookup fails.
	cheatCounts, err := s.events.CountBySession(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Msg("Cheat counts unavailable for board")
		cheatCounts = map[uuid.UUID]int64{}
	}
	unread, err := s.messages.UnreadCounts(ctx, sessionID, model.SenderStudent)
	if err != nil {
		s.log.Warn().Err(err).Msg("Unread counts unavailable for board")
		unread = map[uuid.UUID]int64{}
	}

	board := &Board{
		SessionID:     sessionID,
		SessionStatus: session.Status,
		Participants:  make([]BoardRow, 0, len(parts)),
	}

	now := time.Now()
	for i := range parts {
		p := &parts[i]
		row := BoardRow{
			ParticipantID:        p.ID,
			StudentID:            p.StudentID,
			IsLive:               s.presence.IsLive(p, now),
			IsReady:              p.ReadyAt != nil,
			IsKicked:             p.IsKicked,
			KickedReason:         p.KickedReason,
			CurrentQuestionIndex: p.CurrentQuestionIndex,
			AnsweredCount:        p.AnsweredCount,
			CheatCount:           cheatCounts[p.ID],
			UnreadMessages:       unread[p.ID],
			LastHeartbeat:        p.LastHeartbeat,
		}

		events, err := s.events.ListRecent(ctx, p.ID, RecentEventLimit)
		if err == nil {
			row.RecentEvents = events
		}

		if row.IsLive {
			board.ConnectedCount++
		}
		if row.IsReady {
			board.ReadyCount++
		}
		if row.IsKicked {
			board.KickedCount++
		}
		board.TotalCheats += row.CheatCount

		board.Participants = append(board.Participants, row)
	}

	return board, nil
}
