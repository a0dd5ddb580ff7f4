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

// RoomService owns the session state machine:
//
//	WAITING → STARTED → COMPLETED
//	WAITING/STARTED → CANCELLED
//
// Transitions are serialized by optimistic status predicates in the store, so
// concurrent staff actions on the same session resolve to exactly one winner.
type RoomService struct {
	sessions     SessionStore
	participants ParticipantStore
	assignments  AssignmentProvider
	roster       *RosterService
	presence     *PresenceService
	notifier     *MonitorNotifier
	log          zerolog.Logger
}

// NewRoomService creates a new RoomService.
func NewRoomService(
	sessions SessionStore,
	participants ParticipantStore,
	assignments AssignmentProvider,
	roster *RosterService,
	presence *PresenceService,
	notifier *MonitorNotifier,
	log zerolog.Logger,
) *RoomService {
	return &RoomService{
		sessions:     sessions,
		participants: participants,
		assignments:  assignments,
		roster:       roster,
		presence:     presence,
		notifier:     notifier,
		log:          log.With().Str("component", "room_service").Logger(),
	}
}

// Open finds or creates the waiting room session for an assignment. The
// assignment must be ACTIVE, inside its effective window (assignment end date,
// falling back to the simulation's), and its simulation must use supervised
// rooms. Reopening an assignment with a live session returns that session —
// never a duplicate.
func (s *RoomService) Open(ctx context.Context, assignmentID uuid.UUID, staffID int) (*model.Session, error) {
	assignment, err := s.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	if assignment.Status != model.AssignmentStatusActive {
		return nil, ErrAssignmentInactive
	}

	sim, err := s.assignments.GetSimulation(ctx, assignment.SimulationID)
	if err != nil {
		return nil, fmt.Errorf("get simulation: %w", err)
	}

	if sim.AccessMode != model.AccessModeSupervised {
		return nil, ErrNotSupervised
	}

	now := time.Now()
	if end := effectiveEnd(assignment, sim); end != nil && now.After(*end) {
		return nil, ErrAssignmentExpired
	}

	// Reuse the live session if one exists.
	existing, err := s.sessions.FindActiveByAssignment(ctx, assignmentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find active session: %w", err)
	}

	scheduled := assignment.StartDate
	if scheduled == nil {
		scheduled = sim.StartDate
	}

	session := &model.Session{
		SimulationID:     assignment.SimulationID,
		AssignmentID:     assignmentID,
		Status:           model.SessionStatusWaiting,
		ScheduledStartAt: scheduled,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent open won the insert; return the winner.
			winner, fetchErr := s.sessions.FindActiveByAssignment(ctx, assignmentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent open detected, but fetch failed: %w", fetchErr)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("assignment_id", assignmentID.String()).
		Int("staff_id", staffID).
		Msg("Room opened")

	return session, nil
}

// Start transitions a waiting session to STARTED. Without force the full
// roster must be live; the refusal carries connected/total counts for the
// "X/Y terhubung, paksa mulai?" prompt. Every currently-live participant gets
// started_at stamped; late joiners are stamped by the join flow instead.
func (s *RoomService) Start(ctx context.Context, sessionID uuid.UUID, force bool, staffID int) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.Status != model.SessionStatusWaiting {
		return nil, ErrSessionNotWaiting
	}

	assignment, err := s.assignments.GetAssignment(ctx, session.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	roster, err := s.roster.ResolveRoster(ctx, assignment)
	if err != nil {
		return nil, fmt.Errorf("resolve roster: %w", err)
	}

	parts, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	now := time.Now()
	var liveIDs []uuid.UUID
	for i := range parts {
		if s.presence.IsLive(&parts[i], now) {
			liveIDs = append(liveIDs, parts[i].ID)
		}
	}

	if !force && len(liveIDs) < len(roster) {
		return nil, &StartBlockedError{Connected: len(liveIDs), Total: len(roster)}
	}

	ok, err := s.sessions.Start(ctx, sessionID, now, staffID)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if !ok {
		// A concurrent start won the optimistic update.
		return nil, ErrSessionNotWaiting
	}

	if len(liveIDs) > 0 {
		if err := s.participants.MarkStarted(ctx, liveIDs, now); err != nil {
			return nil, fmt.Errorf("mark participants started: %w", err)
		}
	}

	session.Status = model.SessionStatusStarted
	session.ActualStartAt = &now
	session.StartedByID = &staffID

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("assignment_id", session.AssignmentID.String()).
		Int("staff_id", staffID).
		Int("connected", len(liveIDs)).
		Int("roster", len(roster)).
		Bool("force", force).
		Msg("Session started")

	s.notifier.Publish(ctx, sessionID, "started", map[string]interface{}{
		"connected": len(liveIDs),
		"roster":    len(roster),
	})

	return session, nil
}

// End finalizes a session: status COMPLETED, every participant disconnected
// server-side, all messages purged — one atomic unit in the store. Ending an
// already-completed session succeeds without re-mutation; a cancelled session
// cannot be ended.
func (s *RoomService) End(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	switch session.Status {
	case model.SessionStatusCompleted:
		return session, nil
	case model.SessionStatusCancelled:
		return nil, ErrSessionClosed
	}

	now := time.Now()
	ok, err := s.sessions.Finish(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}
	if !ok {
		// Lost a race: re-read and report the settled state.
		settled, fetchErr := s.sessions.GetByID(ctx, sessionID)
		if fetchErr != nil {
			return nil, fmt.Errorf("refetch session: %w", fetchErr)
		}
		if settled.Status == model.SessionStatusCompleted {
			return settled, nil
		}
		return nil, ErrSessionClosed
	}

	session.Status = model.SessionStatusCompleted
	session.EndedAt = &now

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("assignment_id", session.AssignmentID.String()).
		Msg("Session ended, participants disconnected, messages purged")

	s.notifier.Publish(ctx, sessionID, "ended", nil)

	return session, nil
}

// Cancel aborts a waiting or started session without producing rankings.
func (s *RoomService) Cancel(ctx context.Context, sessionID uuid.UUID, staffID int) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if !session.IsActive() {
		return nil, ErrSessionClosed
	}

	now := time.Now()
	ok, err := s.sessions.Cancel(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("cancel session: %w", err)
	}
	if !ok {
		return nil, ErrSessionClosed
	}

	session.Status = model.SessionStatusCancelled
	session.EndedAt = &now

	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("staff_id", staffID).
		Msg("Session cancelled")

	s.notifier.Publish(ctx, sessionID, "cancelled", nil)

	return session, nil
}

// SetWaitingMessage updates the staff-authored banner shown on the waiting screen.
func (s *RoomService) SetWaitingMessage(ctx context.Context, sessionID uuid.UUID, message string) error {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("get session: %w", err)
	}

	if err := s.sessions.SetWaitingMessage(ctx, sessionID, message); err != nil {
		return fmt.Errorf("set waiting message: %w", err)
	}

	s.notifier.Publish(ctx, sessionID, "waiting_message", map[string]interface{}{"message": message})
	return nil
}

// effectiveEnd is the assignment's end date, falling back to the simulation's.
func effectiveEnd(a *model.Assignment, sim *model.Simulation) *time.Time {
	if a.EndDate != nil {
		return a.EndDate
	}
	return sim.EndDate
}
