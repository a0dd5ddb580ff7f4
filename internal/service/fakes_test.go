package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/model"
)

// In-memory store fakes. They mirror the SQL semantics the repositories
// implement, including the optimistic predicates and kicked guards, so the
// services exercise the same state transitions they would in production.

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.Session

	// Finish and Cancel mirror the repository's transaction, which also
	// disconnects the session's participants (and, for Finish, purges its
	// messages) in the same unit.
	participants *fakeParticipantStore
	messages     *fakeMessageStore
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]*model.Session)}
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) FindActiveByAssignment(_ context.Context, assignmentID uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.AssignmentID == assignmentID && (s.Status == model.SessionStatusWaiting || s.Status == model.SessionStatusStarted) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessionStore) Create(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.AssignmentID == s.AssignmentID && (existing.Status == model.SessionStatusWaiting || existing.Status == model.SessionStatusStarted) {
			return pgx.ErrNoRows
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) Start(_ context.Context, id uuid.UUID, at time.Time, staffID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != model.SessionStatusWaiting {
		return false, nil
	}
	s.Status = model.SessionStatusStarted
	s.ActualStartAt = &at
	s.StartedByID = &staffID
	return true, nil
}

func (f *fakeSessionStore) Finish(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	s, ok := f.sessions[id]
	if !ok || (s.Status != model.SessionStatusWaiting && s.Status != model.SessionStatusStarted) {
		f.mu.Unlock()
		return false, nil
	}
	s.Status = model.SessionStatusCompleted
	s.EndedAt = &at
	f.mu.Unlock()

	if f.participants != nil {
		f.participants.disconnectSession(id)
	}
	if f.messages != nil {
		_, _ = f.messages.DeleteBySession(ctx, id)
	}
	return true, nil
}

func (f *fakeSessionStore) Cancel(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	s, ok := f.sessions[id]
	if !ok || (s.Status != model.SessionStatusWaiting && s.Status != model.SessionStatusStarted) {
		f.mu.Unlock()
		return false, nil
	}
	s.Status = model.SessionStatusCancelled
	s.EndedAt = &at
	f.mu.Unlock()

	if f.participants != nil {
		f.participants.disconnectSession(id)
	}
	return true, nil
}

func (f *fakeSessionStore) SetWaitingMessage(_ context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.WaitingMessage = &message
	return nil
}

func (f *fakeSessionStore) ListExpiredStarted(_ context.Context, _ time.Time) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeParticipantStore struct {
	mu           sync.Mutex
	participants map[uuid.UUID]*model.Participant

	// beforeUpsert, when set, runs just before the upsert takes effect.
	// Tests use it to interleave a kick with an in-flight join.
	beforeUpsert func()
}

func newFakeParticipantStore() *fakeParticipantStore {
	return &fakeParticipantStore{participants: make(map[uuid.UUID]*model.Participant)}
}

func (f *fakeParticipantStore) GetByID(_ context.Context, id uuid.UUID) (*model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParticipantStore) GetBySessionAndStudent(_ context.Context, sessionID uuid.UUID, studentID int) (*model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.SessionID == sessionID && p.StudentID == studentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeParticipantStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Participant
	for _, p := range f.participants {
		if p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeParticipantStore) Upsert(_ context.Context, p *model.Participant) error {
	if f.beforeUpsert != nil {
		f.beforeUpsert()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.participants {
		if existing.SessionID == p.SessionID && existing.StudentID == p.StudentID {
			if existing.IsKicked {
				return pgx.ErrNoRows
			}
			existing.IsConnected = true
			existing.LastHeartbeat = p.LastHeartbeat
			existing.ReadyAt = nil
			if existing.StartedAt == nil {
				existing.StartedAt = p.StartedAt
			}
			p.ID = existing.ID
			p.JoinedAt = existing.JoinedAt
			p.AnonymousID = existing.AnonymousID
			return nil
		}
	}
	p.ID = uuid.New()
	cp := *p
	f.participants[p.ID] = &cp
	return nil
}

func (f *fakeParticipantStore) Heartbeat(_ context.Context, id uuid.UUID, at time.Time, progress *model.HeartbeatProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok || p.IsKicked {
		return nil
	}
	p.IsConnected = true
	p.LastHeartbeat = &at
	if progress != nil {
		if progress.CurrentQuestionIndex != nil {
			p.CurrentQuestionIndex = *progress.CurrentQuestionIndex
		}
		if progress.AnsweredCount != nil {
			p.AnsweredCount = *progress.AnsweredCount
		}
	}
	return nil
}

func (f *fakeParticipantStore) SetReady(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok || p.IsKicked {
		return nil
	}
	p.ReadyAt = &at
	return nil
}

func (f *fakeParticipantStore) MarkStarted(_ context.Context, ids []uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if p, ok := f.participants[id]; ok && p.StartedAt == nil {
			t := at
			p.StartedAt = &t
		}
	}
	return nil
}

func (f *fakeParticipantStore) Kick(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[id]
	if !ok || p.IsKicked {
		return nil
	}
	p.IsKicked = true
	p.IsConnected = false
	p.KickedReason = &reason
	p.KickedAt = &at
	return nil
}

func (f *fakeParticipantStore) Disconnect(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[id]; ok {
		p.IsConnected = false
	}
	return nil
}

func (f *fakeParticipantStore) disconnectSession(sessionID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.SessionID == sessionID {
			p.IsConnected = false
		}
	}
}

func (f *fakeParticipantStore) CountLiveOthers(_ context.Context, sessionID, excludeID uuid.UUID, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.participants {
		if p.SessionID == sessionID && p.ID != excludeID && p.IsConnected && p.LastHeartbeat != nil && !p.LastHeartbeat.Before(since) {
			n++
		}
	}
	return n, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []model.CheatingEvent
}

func (f *fakeEventStore) Insert(_ context.Context, e *model.CheatingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.New()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeEventStore) ListRecent(_ context.Context, participantID uuid.UUID, limit int) ([]model.CheatingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CheatingEvent
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.events[i].ParticipantID == participantID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

func (f *fakeEventStore) CountBySession(_ context.Context, _ uuid.UUID) (map[uuid.UUID]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[uuid.UUID]int64)
	for _, e := range f.events {
		counts[e.ParticipantID]++
	}
	return counts, nil
}

type fakeMessageStore struct {
	mu           sync.Mutex
	messages     []model.Message
	participants *fakeParticipantStore
}

func (f *fakeMessageStore) Insert(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeMessageStore) Thread(_ context.Context, participantID uuid.UUID) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if m.ParticipantID == participantID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) Recent(_ context.Context, participantID uuid.UUID, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if f.messages[i].ParticipantID == participantID {
			out = append(out, f.messages[i])
		}
	}
	return out, nil
}

func (f *fakeMessageStore) MarkRead(_ context.Context, participantID uuid.UUID, senderType model.SenderType, ids []uuid.UUID, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idSet := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	var n int64
	for i := range f.messages {
		m := &f.messages[i]
		if m.ParticipantID != participantID || m.SenderType != senderType || m.IsRead {
			continue
		}
		if len(ids) > 0 {
			if _, ok := idSet[m.ID]; !ok {
				continue
			}
		}
		m.IsRead = true
		t := at
		m.ReadAt = &t
		n++
	}
	return n, nil
}

func (f *fakeMessageStore) UnreadCounts(_ context.Context, sessionID uuid.UUID, senderType model.SenderType) (map[uuid.UUID]int64, error) {
	inSession := make(map[uuid.UUID]bool)
	if f.participants != nil {
		f.participants.mu.Lock()
		for _, p := range f.participants.participants {
			if p.SessionID == sessionID {
				inSession[p.ID] = true
			}
		}
		f.participants.mu.Unlock()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[uuid.UUID]int64)
	for _, m := range f.messages {
		if inSession[m.ParticipantID] && m.SenderType == senderType && !m.IsRead {
			counts[m.ParticipantID]++
		}
	}
	return counts, nil
}

func (f *fakeMessageStore) DeleteBySession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inSession := make(map[uuid.UUID]bool)
	if f.participants != nil {
		f.participants.mu.Lock()
		for _, p := range f.participants.participants {
			if p.SessionID == sessionID {
				inSession[p.ID] = true
			}
		}
		f.participants.mu.Unlock()
	}
	var kept []model.Message
	var n int64
	for _, m := range f.messages {
		if inSession[m.ParticipantID] {
			n++
			continue
		}
		kept = append(kept, m)
	}
	f.messages = kept
	return n, nil
}

type fakeAssignmentProvider struct {
	assignments map[uuid.UUID]*model.Assignment
	simulations map[uuid.UUID]*model.Simulation
	groups      map[uuid.UUID][]model.StudentRef
	students    map[int]*model.StudentRef
}

func newFakeAssignmentProvider() *fakeAssignmentProvider {
	return &fakeAssignmentProvider{
		assignments: make(map[uuid.UUID]*model.Assignment),
		simulations: make(map[uuid.UUID]*model.Simulation),
		groups:      make(map[uuid.UUID][]model.StudentRef),
		students:    make(map[int]*model.StudentRef),
	}
}

func (f *fakeAssignmentProvider) GetAssignment(_ context.Context, id uuid.UUID) (*model.Assignment, error) {
	a, ok := f.assignments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeAssignmentProvider) GetSimulation(_ context.Context, id uuid.UUID) (*model.Simulation, error) {
	s, ok := f.simulations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeAssignmentProvider) ListGroupMembers(_ context.Context, groupID uuid.UUID) ([]model.StudentRef, error) {
	return f.groups[groupID], nil
}

func (f *fakeAssignmentProvider) GetStudent(_ context.Context, id int) (*model.StudentRef, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

type fakeRankingStore struct {
	rows []model.RankingRow
}

func (f *fakeRankingStore) ListCompleted(_ context.Context, _ uuid.UUID) ([]model.RankingRow, error) {
	return f.rows, nil
}

// ─── Test wiring helpers ────────────────────────────────────────────

// testRedis spins up an in-process Redis for the notifier, queue and caches.
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type testEnv struct {
	sessions     *fakeSessionStore
	participants *fakeParticipantStore
	events       *fakeEventStore
	messages     *fakeMessageStore
	assignments  *fakeAssignmentProvider
	rankings     *fakeRankingStore
	rdb          *redis.Client

	messaging  *MessagingService
	presence   *PresenceService
	roster     *RosterService
	room       *RoomService
	moderation *ModerationService
	ranking    *RankingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		sessions:     newFakeSessionStore(),
		participants: newFakeParticipantStore(),
		events:       &fakeEventStore{},
		assignments:  newFakeAssignmentProvider(),
		rankings:     &fakeRankingStore{},
		rdb:          testRedis(t),
	}
	env.messages = &fakeMessageStore{participants: env.participants}
	env.sessions.participants = env.participants
	env.sessions.messages = env.messages

	log := zerolog.Nop()
	notifier := NewMonitorNotifier(env.rdb, log)

	env.messaging = NewMessagingService(env.participants, env.messages, notifier, log)
	env.presence = NewPresenceService(env.sessions, env.participants, env.assignments, env.messaging, notifier, HeartbeatTimeout, log)
	env.roster = NewRosterService(env.sessions, env.participants, env.assignments, env.presence, notifier, log)
	env.room = NewRoomService(env.sessions, env.participants, env.assignments, env.roster, env.presence, notifier, log)
	env.moderation = NewModerationService(env.sessions, env.participants, env.events, env.messages, env.presence, notifier, env.rdb, log)
	env.ranking = NewRankingService(env.sessions, env.rankings, env.rdb, log)

	return env
}

// seedSupervised registers an ACTIVE supervised assignment with a group of
// the given students and returns the assignment ID.
func (env *testEnv) seedSupervised(studentIDs ...int) uuid.UUID {
	simID := uuid.New()
	groupID := uuid.New()
	assignmentID := uuid.New()

	env.assignments.simulations[simID] = &model.Simulation{
		ID:              simID,
		Title:           "Simulasi Matematika",
		AccessMode:      model.AccessModeSupervised,
		DurationMinutes: 60,
		QuestionCount:   40,
	}

	var members []model.StudentRef
	for _, id := range studentIDs {
		ref := model.StudentRef{ID: id, Name: "Siswa " + uuid.NewString()[:4]}
		env.assignments.students[id] = &ref
		members = append(members, ref)
	}
	env.assignments.groups[groupID] = members

	env.assignments.assignments[assignmentID] = &model.Assignment{
		ID:           assignmentID,
		SimulationID: simID,
		Status:       model.AssignmentStatusActive,
		GroupID:      &groupID,
	}

	return assignmentID
}
