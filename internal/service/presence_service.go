package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/model"
)

// HeartbeatTimeout is the default liveness window. A participant whose last
// heartbeat is older than this counts as disconnected regardless of the
// stored connected flag — a crashed client never signals disconnection, so
// only heartbeat recency is trustworthy.
const HeartbeatTimeout = 15 * time.Second

// PresenceService owns liveness: heartbeats, the derived is-live decision and
// explicit disconnects. Every component that needs a connected count goes
// through IsLive rather than the stored flag.
type PresenceService struct {
	sessions     SessionStore
	participants ParticipantStore
	assignments  AssignmentProvider
	messaging    *MessagingService
	notifier     *MonitorNotifier
	timeout      time.Duration
	log          zerolog.Logger
}

// NewPresenceService creates a new PresenceService. A non-positive timeout
// falls back to the default 15-second window.
func NewPresenceService(
	sessions SessionStore,
	participants ParticipantStore,
	assignments AssignmentProvider,
	messaging *MessagingService,
	notifier *MonitorNotifier,
	timeout time.Duration,
	log zerolog.Logger,
) *PresenceService {
	if timeout <= 0 {
		timeout = HeartbeatTimeout
	}
	return &PresenceService{
		sessions:     sessions,
		participants: participants,
		assignments:  assignments,
		messaging:    messaging,
		notifier:     notifier,
		timeout:      timeout,
		log:          log.With().Str("component", "presence_service").Logger(),
	}
}

// Timeout returns the configured liveness window.
func (s *PresenceService) Timeout() time.Duration {
	return s.timeout
}

// IsLive derives real-time liveness from the stored state: connected flag AND
// a heartbeat inside the window.
func (s *PresenceService) IsLive(p *model.Participant, now time.Time) bool {
	if !p.IsConnected || p.LastHeartbeat == nil {
		return false
	}
	return now.Sub(*p.LastHeartbeat) < s.timeout
}

// CountLive counts live participants out of the given slice.
func (s *PresenceService) CountLive(parts []model.Participant, now time.Time) int {
	n := 0
	for i := range parts {
		if s.IsLive(&parts[i], now) {
			n++
		}
	}
	return n
}

// HeartbeatResult is the poll response a connected client consumes every few
// seconds. For a kicked participant it deliberately reveals nothing beyond
// "session completed" and the kick reason.
type HeartbeatResult struct {
	ParticipantID uuid.UUID           `json:"participant_id"`
	SessionStatus model.SessionStatus `json:"session_status"`
	IsKicked      bool                `json:"is_kicked"`
	KickedReason  *string             `json:"kicked_reason,omitempty"`
	TimeRemaining *float64            `json:"time_remaining,omitempty"`
}

// Heartbeat records a liveness signal for the session's participant owned by
// studentID, optionally updating exam progress. It is idempotent and safe to
// apply out of arrival order: liveness only cares about recency.
//
// A kicked participant gets a soft result — no error, no state mutation — so
// a rejoining client renders the removal screen instead of a generic failure.
func (s *PresenceService) Heartbeat(ctx context.Context, sessionID uuid.UUID, studentID int, progress *model.HeartbeatProgress) (*HeartbeatResult, error) {
	p, err := s.participants.GetBySessionAndStudent(ctx, sessionID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}

	if p.IsKicked {
		return kickedResult(p), nil
	}

	session, err := s.sessions.GetByID(ctx, p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	now := time.Now()
	if session.IsActive() {
		if err := s.participants.Heartbeat(ctx, p.ID, now, progress); err != nil {
			return nil, fmt.Errorf("record heartbeat: %w", err)
		}
	}

	result := &HeartbeatResult{
		ParticipantID: p.ID,
		SessionStatus: session.Status,
	}
	if remaining, err := s.remaining(ctx, session, now); err == nil {
		result.TimeRemaining = remaining
	}

	if progress != nil {
		s.notifier.Publish(ctx, session.ID, "progress", map[string]interface{}{
			"student_id": studentID,
			"answered":   progress.AnsweredCount,
		})
	}

	return result, nil
}

// Disconnect is the explicit leave signal (page close, submit screen exit).
// When the session is already completed and this was the last live viewer,
// the session's messages are purged — nobody is looking at the screen anymore.
func (s *PresenceService) Disconnect(ctx context.Context, sessionID uuid.UUID, studentID int) error {
	p, err := s.participants.GetBySessionAndStudent(ctx, sessionID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrParticipantNotFound
		}
		return fmt.Errorf("get participant: %w", err)
	}

	if err := s.participants.Disconnect(ctx, p.ID); err != nil {
		return fmt.Errorf("disconnect participant: %w", err)
	}

	session, err := s.sessions.GetByID(ctx, p.SessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	if session.Status == model.SessionStatusCompleted {
		live, err := s.participants.CountLiveOthers(ctx, session.ID, p.ID, time.Now().Add(-s.timeout))
		if err != nil {
			return fmt.Errorf("count live participants: %w", err)
		}
		if live == 0 {
			if err := s.messaging.PurgeSession(ctx, session.ID); err != nil {
				s.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("Post-completion message purge failed")
			}
		}
	}

	s.notifier.Publish(ctx, session.ID, "leave", map[string]interface{}{"student_id": studentID})
	return nil
}

// remaining computes the seconds left for a started session, nil otherwise.
func (s *PresenceService) remaining(ctx context.Context, session *model.Session, now time.Time) (*float64, error) {
	if session.Status != model.SessionStatusStarted || session.ActualStartAt == nil {
		return nil, nil
	}
	sim, err := s.assignments.GetSimulation(ctx, session.SimulationID)
	if err != nil {
		return nil, fmt.Errorf("get simulation: %w", err)
	}
	secs := TimeRemaining(session, sim.DurationMinutes, now)
	return &secs, nil
}

// TimeRemaining derives the seconds left in a started session, floored at zero.
func TimeRemaining(session *model.Session, durationMinutes int, now time.Time) float64 {
	deadline := session.ActualStartAt.Add(time.Duration(durationMinutes) * time.Minute)
	remaining := deadline.Sub(now).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// kickedResult builds the bounded response a kicked participant receives:
// the session is presented as completed and only the reason leaks out.
func kickedResult(p *model.Participant) *HeartbeatResult {
	return &HeartbeatResult{
		ParticipantID: p.ID,
		SessionStatus: model.SessionStatusCompleted,
		IsKicked:      true,
		KickedReason:  p.KickedReason,
	}
}

// newAnonymousID generates the stable pseudorandom token that masks a
// participant's identity in student-facing rankings.
func newAnonymousID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable for any practical purpose;
		// fall back to a UUID rather than panic.
		return uuid.New().String()[:12]
	}
	return hex.EncodeToString(buf)
}
