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

// RosterService resolves who is invited to a session and runs the student-side
// waiting-room flow: join, readiness and the polling room state.
type RosterService struct {
	sessions     SessionStore
	participants ParticipantStore
	assignments  AssignmentProvider
	presence     *PresenceService
	notifier     *MonitorNotifier
	log          zerolog.Logger
}

// NewRosterService creates a new RosterService.
func NewRosterService(
	sessions SessionStore,
	participants ParticipantStore,
	assignments AssignmentProvider,
	presence *PresenceService,
	notifier *MonitorNotifier,
	log zerolog.Logger,
) *RosterService {
	return &RosterService{
		sessions:     sessions,
		participants: participants,
		assignments:  assignments,
		presence:     presence,
		notifier:     notifier,
		log:          log.With().Str("component", "roster_service").Logger(),
	}
}

// ResolveRoster computes the invited students for an assignment: the direct
// assignee, the group's members, or both, deduplicated by student identity.
// The roster is the denominator of every connected/total display and the
// gate for a non-forced start.
func (s *RosterService) ResolveRoster(ctx context.Context, assignment *model.Assignment) ([]model.StudentRef, error) {
	seen := make(map[int]struct{})
	var roster []model.StudentRef

	if assignment.StudentID != nil {
		student, err := s.assignments.GetStudent(ctx, *assignment.StudentID)
		if err != nil {
			return nil, fmt.Errorf("get assignee: %w", err)
		}
		seen[student.ID] = struct{}{}
		roster = append(roster, *student)
	}

	if assignment.GroupID != nil {
		members, err := s.assignments.ListGroupMembers(ctx, *assignment.GroupID)
		if err != nil {
			return nil, fmt.Errorf("list group members: %w", err)
		}
		for _, m := range members {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			roster = append(roster, m)
		}
	}

	return roster, nil
}

// JoinResult tells the joining client what to render: the waiting screen, the
// in-progress exam, or the removal banner.
type JoinResult struct {
	ParticipantID    uuid.UUID           `json:"participant_id"`
	SessionID        uuid.UUID           `json:"session_id"`
	SessionStatus    model.SessionStatus `json:"session_status"`
	ScheduledStartAt *time.Time          `json:"scheduled_start_at,omitempty"`
	ActualStartAt    *time.Time          `json:"actual_start_at,omitempty"`
	WaitingMessage   *string             `json:"waiting_message,omitempty"`
	TimeRemaining    *float64            `json:"time_remaining,omitempty"`
	IsKicked         bool                `json:"is_kicked"`
	KickedReason     *string             `json:"kicked_reason,omitempty"`
}

// Join enters a student into the assignment's live session. Authorization
// comes from the roster, the session must already exist (students never
// create sessions) and the membership upsert is idempotent: a reconnect
// reactivates the row and resets readiness. A kicked student gets the same
// soft kicked result as a heartbeat and no state is touched.
func (s *RosterService) Join(ctx context.Context, assignmentID uuid.UUID, studentID int) (*JoinResult, error) {
	assignment, err := s.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	roster, err := s.ResolveRoster(ctx, assignment)
	if err != nil {
		return nil, fmt.Errorf("resolve roster: %w", err)
	}
	if !rosterContains(roster, studentID) {
		return nil, ErrNotInvited
	}

	session, err := s.sessions.FindActiveByAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}

	now := time.Now()

	existing, err := s.participants.GetBySessionAndStudent(ctx, session.ID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if existing != nil && existing.IsKicked {
		return &JoinResult{
			ParticipantID: existing.ID,
			SessionID:     session.ID,
			SessionStatus: model.SessionStatusCompleted,
			IsKicked:      true,
			KickedReason:  existing.KickedReason,
		}, nil
	}

	p := &model.Participant{
		SessionID:     session.ID,
		StudentID:     studentID,
		IsConnected:   true,
		LastHeartbeat: &now,
		JoinedAt:      now,
		AnonymousID:   newAnonymousID(),
	}
	// Late arrival to a running exam: the join flow stamps started_at, not
	// the start transition.
	if session.Status == model.SessionStatusStarted {
		if existing == nil || existing.StartedAt == nil {
			p.StartedAt = &now
		}
	}

	if err := s.participants.Upsert(ctx, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A kick landed between the check above and the guarded upsert,
			// so the update matched no row. Re-read and resolve softly.
			kicked, readErr := s.participants.GetBySessionAndStudent(ctx, session.ID, studentID)
			if readErr != nil {
				return nil, fmt.Errorf("get participant after guarded upsert: %w", readErr)
			}
			return &JoinResult{
				ParticipantID: kicked.ID,
				SessionID:     session.ID,
				SessionStatus: model.SessionStatusCompleted,
				IsKicked:      true,
				KickedReason:  kicked.KickedReason,
			}, nil
		}
		return nil, fmt.Errorf("upsert participant: %w", err)
	}

	result := &JoinResult{
		ParticipantID:    p.ID,
		SessionID:        session.ID,
		SessionStatus:    session.Status,
		ScheduledStartAt: session.ScheduledStartAt,
		ActualStartAt:    session.ActualStartAt,
		WaitingMessage:   session.WaitingMessage,
	}
	if session.Status == model.SessionStatusStarted {
		if remaining, err := s.presence.remaining(ctx, session, now); err == nil {
			result.TimeRemaining = remaining
		}
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Int("student_id", studentID).
		Str("status", string(session.Status)).
		Msg("Student joined room")

	s.notifier.Publish(ctx, session.ID, "join", map[string]interface{}{"student_id": studentID})

	return result, nil
}

// SetReady stamps the student's readiness confirmation. Readiness is
// informational for the staff UI only — it never gates the start; only the
// liveness count does. Kicked participants get the soft result.
func (s *RosterService) SetReady(ctx context.Context, sessionID uuid.UUID, studentID int) (*HeartbeatResult, error) {
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

	if err := s.participants.SetReady(ctx, p.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("set ready: %w", err)
	}

	s.notifier.Publish(ctx, session.ID, "ready", map[string]interface{}{"student_id": studentID})

	return &HeartbeatResult{ParticipantID: p.ID, SessionStatus: session.Status}, nil
}

// RoomState is the student waiting/running screen poll.
type RoomState struct {
	SessionStatus    model.SessionStatus `json:"session_status"`
	ScheduledStartAt *time.Time          `json:"scheduled_start_at,omitempty"`
	ActualStartAt    *time.Time          `json:"actual_start_at,omitempty"`
	WaitingMessage   *string             `json:"waiting_message,omitempty"`
	ConnectedCount   int                 `json:"connected_count"`
	RosterSize       int                 `json:"roster_size"`
	TimeRemaining    *float64            `json:"time_remaining,omitempty"`
	IsKicked         bool                `json:"is_kicked"`
	KickedReason     *string             `json:"kicked_reason,omitempty"`
}

// State returns the session view the student client polls between heartbeats.
// For a kicked student the view collapses to completed + reason.
func (s *RosterService) State(ctx context.Context, sessionID uuid.UUID, studentID int) (*RoomState, error) {
	p, err := s.participants.GetBySessionAndStudent(ctx, sessionID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}

	if p.IsKicked {
		return &RoomState{
			SessionStatus: model.SessionStatusCompleted,
			IsKicked:      true,
			KickedReason:  p.KickedReason,
		}, nil
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	assignment, err := s.assignments.GetAssignment(ctx, session.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	roster, err := s.ResolveRoster(ctx, assignment)
	if err != nil {
		return nil, fmt.Errorf("resolve roster: %w", err)
	}

	parts, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	now := time.Now()
	state := &RoomState{
		SessionStatus:    session.Status,
		ScheduledStartAt: session.ScheduledStartAt,
		ActualStartAt:    session.ActualStartAt,
		WaitingMessage:   session.WaitingMessage,
		ConnectedCount:   s.presence.CountLive(parts, now),
		RosterSize:       len(roster),
	}
	if remaining, err := s.presence.remaining(ctx, session, now); err == nil {
		state.TimeRemaining = remaining
	}

	return state, nil
}

// Participant resolves the session membership record owned by studentID.
// Student-facing endpoints address the room by session, never by participant
// ID, so this is the translation every such call goes through.
func (s *RosterService) Participant(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.Participant, error) {
	p, err := s.participants.GetBySessionAndStudent(ctx, sessionID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func rosterContains(roster []model.StudentRef, studentID int) bool {
	for _, r := range roster {
		if r.ID == studentID {
			return true
		}
	}
	return false
}
