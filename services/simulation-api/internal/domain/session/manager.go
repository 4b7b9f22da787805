package session

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/status"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/idgen"
)

// ErrRunNotFound is returned for unknown runs and runs of other owners.
var ErrRunNotFound = testrun.ErrRunNotFound

// PersonaResolver loads the personas of a run.
type PersonaResolver interface {
	Resolve(ctx context.Context, ownerID string, publicIDs []string) ([]*persona.Persona, error)
}

// StartParams describes a new run.
type StartParams struct {
	OwnerID    string
	PersonaIDs []string
	Config     testrun.RunConfig
}

// Manager creates sessions and keeps them addressable by run ID. Sessions
// with running chains stay pinned; idle ones live in an LRU cache and are
// rebuilt from the store when evicted.
type Manager struct {
	deps     Dependencies
	personas PersonaResolver
	baseCtx  context.Context
	log      zerolog.Logger

	mu     sync.Mutex
	active map[string]*Session
	idle   *lru.Cache
}

// NewManager creates a manager. Chains run on baseCtx; cancelling it stops
// every chain.
func NewManager(baseCtx context.Context, deps Dependencies, personas PersonaResolver, cacheSize int) (*Manager, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Manager{
		deps:     deps,
		personas: personas,
		baseCtx:  baseCtx,
		log:      deps.Log.With().Str("component", "session-manager").Logger(),
		active:   make(map[string]*Session),
		idle:     cache,
	}, nil
}

// StartRun stores a new run with one conversation per persona and starts
// every chain in the background.
func (m *Manager) StartRun(ctx context.Context, params StartParams) (*Session, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	if len(params.PersonaIDs) == 0 {
		return nil, testrun.ErrNoPersonas
	}
	seen := make(map[string]bool, len(params.PersonaIDs))
	for _, id := range params.PersonaIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", testrun.ErrDuplicatePersona, id)
		}
		seen[id] = true
	}

	personas, err := m.personas.Resolve(ctx, params.OwnerID, params.PersonaIDs)
	if err != nil {
		return nil, err
	}

	run := &testrun.TestRun{
		PublicID: idgen.NewID(idgen.PrefixRun),
		OwnerID:  params.OwnerID,
		Config:   params.Config,
		Status:   status.StatusPending,
	}
	members := make([]Member, 0, len(personas))
	records := make([]*testrun.PersonaConversation, 0, len(personas))
	for _, p := range personas {
		record := &testrun.PersonaConversation{
			PublicID:  idgen.NewID(idgen.PrefixConversation),
			PersonaID: p.PublicID,
			Status:    status.StatusPending,
		}
		records = append(records, record)
		members = append(members, Member{Persona: *p, Record: record})
	}
	if err := m.deps.Runs.CreateRun(ctx, run, records); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	s := m.newSession(run, members)
	started := s.Start()
	m.log.Info().
		Str("run_id", run.PublicID).
		Int("personas", started).
		Int("max_turns_per_side", run.Config.MaxTurnsPerSide).
		Msg("test run started")
	return s, nil
}

// Session returns the session of a run owned by ownerID, rebuilding it from
// the store when it is not in memory.
func (m *Manager) Session(ctx context.Context, ownerID, runID string) (*Session, error) {
	s := m.lookup(runID)
	if s == nil {
		var err error
		if s, err = m.hydrate(ctx, runID); err != nil {
			return nil, err
		}
	}
	if s.run.OwnerID != ownerID {
		return nil, ErrRunNotFound
	}
	return s, nil
}

// Wait blocks until every pinned session is idle or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range m.activeSessions() {
			s.Wait()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveSessions returns how many sessions have running chains.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) activeSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, s)
	}
	return out
}

func (m *Manager) lookup(runID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.active[runID]; ok {
		return s
	}
	if v, ok := m.idle.Get(runID); ok {
		return v.(*Session)
	}
	return nil
}

func (m *Manager) hydrate(ctx context.Context, runID string) (*Session, error) {
	run, err := m.deps.Runs.FindRunByPublicID(ctx, runID)
	if err != nil {
		return nil, err
	}
	records, err := m.deps.Runs.ListConversations(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.PersonaID)
	}
	personas, err := m.personas.Resolve(ctx, run.OwnerID, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve personas of run %s: %w", runID, err)
	}

	members := make([]Member, 0, len(records))
	for i, r := range records {
		turns, err := conversation.Load(ctx, m.deps.Store, r.PublicID)
		if err != nil {
			return nil, fmt.Errorf("load conversation %s: %w", r.PublicID, err)
		}
		members = append(members, Member{Persona: *personas[i], Record: r, Turns: turns})
	}

	// check and insert under one hold so concurrent hydrations share a session
	m.mu.Lock()
	if s, ok := m.active[runID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	if v, ok := m.idle.Get(runID); ok {
		m.mu.Unlock()
		return v.(*Session), nil
	}
	s := m.newSession(run, members)
	m.idle.Add(runID, s)
	m.mu.Unlock()

	if resumed := s.Start(); resumed > 0 {
		m.log.Info().Str("run_id", runID).Int("personas", resumed).Msg("resumed chains that never started")
	}
	return s, nil
}

func (m *Manager) newSession(run *testrun.TestRun, members []Member) *Session {
	s := New(m.baseCtx, m.deps, run, members)
	s.hooks = hooks{busy: m.pin, idle: m.unpin}
	return s
}

// pin and unpin are called with the session lock held; they must not call
// back into the session.
func (m *Manager) pin(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idle.Remove(s.run.PublicID)
	m.active[s.run.PublicID] = s
}

func (m *Manager) unpin(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, s.run.PublicID)
	m.idle.Add(s.run.PublicID, s)
}
