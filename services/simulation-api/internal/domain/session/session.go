// Package session runs the persona chains of one test run and handles edits
// and regeneration of individual conversations.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/orchestrator"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/status"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
)

var (
	ErrChainActive         = errors.New("conversation is still being generated")
	ErrUnknownPersona      = errors.New("persona is not part of this run")
	ErrTurnIndexOutOfRange = errors.New("turn index out of range")
	ErrNotPersonaTurn      = errors.New("only persona turns can be edited")
	ErrEmptyContent        = errors.New("content must not be empty")
	ErrTurnNotPersisted    = errors.New("turn has no timestamp and cannot be used as a cutoff")
)

// ChainInstrumenter wraps the execution of one persona chain.
type ChainInstrumenter interface {
	InstrumentChain(ctx context.Context, runID, personaID string, fn func(context.Context) error) error
}

// Dependencies are shared by every session.
type Dependencies struct {
	Provider  provider.Client
	Store     conversation.MessageStore
	Runs      testrun.Repository
	Generator orchestrator.TurnGenerator
	// Instrumenter may be nil.
	Instrumenter ChainInstrumenter
	// PersonaAssistantID is the provider assistant that role-plays personas.
	PersonaAssistantID string
	// Concurrency caps how many chains of one session run at once.
	Concurrency int
	Log         zerolog.Logger
}

type hooks struct {
	busy func(*Session)
	idle func(*Session)
}

type personaState struct {
	persona persona.Persona
	record  *testrun.PersonaConversation
	conv    *conversation.Conversation
	running bool
	// thread history for threads that still have to be created
	personaSeed   []provider.ThreadMessage
	assistantSeed []provider.ThreadMessage
}

// Session owns the conversations of one run, keyed by persona public ID.
type Session struct {
	deps    Dependencies
	run     *testrun.TestRun
	baseCtx context.Context
	hooks   hooks
	events  *Broadcaster
	log     zerolog.Logger

	mu       sync.Mutex
	order    []string
	personas map[string]*personaState
	running  int
	wg       sync.WaitGroup
}

// Member is one persona of a run with its conversation record and history.
type Member struct {
	Persona persona.Persona
	Record  *testrun.PersonaConversation
	Turns   []conversation.Turn
}

// New builds a session. Chains started later run on baseCtx, not on the
// context of the request that triggered them.
func New(baseCtx context.Context, deps Dependencies, run *testrun.TestRun, members []Member) *Session {
	s := &Session{
		deps:     deps,
		run:      run,
		baseCtx:  baseCtx,
		events:   NewBroadcaster(),
		personas: make(map[string]*personaState, len(members)),
		log:      deps.Log.With().Str("component", "run-session").Str("run_id", run.PublicID).Logger(),
	}
	for _, m := range members {
		st := &personaState{
			persona: m.Persona,
			record:  m.Record,
			conv:    conversation.New(m.Turns),
		}
		switch st.record.Status {
		case status.StatusInProgress:
			// The process stopped while this chain was running.
			st.record.Status = status.StatusCancelled
		case status.StatusPending:
			st.personaSeed, st.assistantSeed = freshSeeds(m.Persona)
		}
		s.order = append(s.order, m.Persona.PublicID)
		s.personas[m.Persona.PublicID] = st
	}
	return s
}

// Run returns the run this session belongs to.
func (s *Session) Run() testrun.TestRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.run
}

// Events returns the session's progress broadcaster.
func (s *Session) Events() *Broadcaster {
	return s.events
}

// PersonaIDs returns the persona public IDs in run order.
func (s *Session) PersonaIDs() []string {
	return append([]string(nil), s.order...)
}

// Conversation returns the live conversation of a persona.
func (s *Session) Conversation(personaID string) (*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.personas[personaID]
	if !ok {
		return nil, ErrUnknownPersona
	}
	return st.conv, nil
}

// Conversations returns every conversation of the run keyed by persona.
func (s *Session) Conversations() map[string]*conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*conversation.Conversation, len(s.personas))
	for id, st := range s.personas {
		out[id] = st.conv
	}
	return out
}

// Record returns a copy of a persona's conversation record.
func (s *Session) Record(personaID string) (testrun.PersonaConversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.personas[personaID]
	if !ok {
		return testrun.PersonaConversation{}, ErrUnknownPersona
	}
	return *st.record, nil
}

// Busy reports whether any chain of the session is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running > 0
}

// Wait blocks until every chain started so far has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Start launches a chain for every persona that has not started yet. Each
// chain is independent; one failing does not stop the others.
func (s *Session) Start() int {
	s.mu.Lock()
	var states []*personaState
	for _, id := range s.order {
		st := s.personas[id]
		if st.running || st.record.Status != status.StatusPending {
			continue
		}
		states = append(states, st)
	}
	s.claimLocked(states...)
	s.mu.Unlock()

	if len(states) == 0 {
		return 0
	}
	s.launch(states, func(ctx context.Context, st *personaState) error {
		return s.newOrchestrator(st).Run(ctx)
	})
	return len(states)
}

// EditTurn replaces the persona turn at turnIndex of the merged conversation
// with content, drops every later turn from both logs and resumes the chain
// with an assistant reply to the new content.
func (s *Session) EditTurn(ctx context.Context, personaID string, turnIndex int, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}

	st, err := s.claim(personaID)
	if err != nil {
		return err
	}
	release := true
	defer func() {
		if release {
			s.release(st)
		}
	}()

	turns := st.conv.Turns()
	if turnIndex < 0 || turnIndex >= len(turns) {
		return ErrTurnIndexOutOfRange
	}
	target := turns[turnIndex]
	if target.Role != conversation.RolePersona {
		return ErrNotPersonaTurn
	}
	if target.CreatedAt.IsZero() {
		return ErrTurnNotPersisted
	}

	log := s.log.With().Str("persona_id", personaID).Int("turn_index", turnIndex).Logger()
	cutoff := target.CreatedAt
	for _, ref := range s.refs(st) {
		removed, err := s.deps.Store.DeleteFrom(ctx, ref, cutoff)
		if err != nil {
			return fmt.Errorf("truncate %s log: %w", ref.Log, err)
		}
		log.Debug().Str("log", string(ref.Log)).Int64("removed", removed).Msg("log truncated")
	}
	st.conv.Truncate(turnIndex)

	edited, err := s.deps.Store.Append(ctx, s.refs(st)[0], conversation.RolePersona, content, false)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist edited turn, continuing with in-memory turn")
		var last time.Time
		if prev, ok := st.conv.Last(); ok {
			last = prev.CreatedAt
		}
		edited = conversation.Turn{
			Role:      conversation.RolePersona,
			Content:   content,
			CreatedAt: conversation.NextTimestamp(last, time.Now()),
		}
	}
	st.conv.Append(edited)
	s.events.Publish(orchestrator.Event{Type: orchestrator.EventTurnCompleted, PersonaID: personaID, Index: turnIndex, Turn: edited})

	prefix := st.conv.Turns()
	s.resetThreads(st, personaThreadHistory(prefix), assistantThreadHistory(prefix[:len(prefix)-1]))

	log.Info().Msg("turn edited, resuming conversation")
	release = false
	s.launch([]*personaState{st}, func(ctx context.Context, st *personaState) error {
		return s.newOrchestrator(st).Resume(ctx, content)
	})
	return nil
}

// Regenerate deletes a persona's whole conversation and runs it again from
// the start.
func (s *Session) Regenerate(ctx context.Context, personaID string) error {
	st, err := s.claim(personaID)
	if err != nil {
		return err
	}

	for _, ref := range s.refs(st) {
		if _, err := s.deps.Store.DeleteAll(ctx, ref); err != nil {
			s.release(st)
			return fmt.Errorf("clear %s log: %w", ref.Log, err)
		}
	}
	st.conv.Reset()
	personaSeed, assistantSeed := freshSeeds(st.persona)
	s.resetThreads(st, personaSeed, assistantSeed)

	s.log.Info().Str("persona_id", personaID).Msg("regenerating conversation")
	s.launch([]*personaState{st}, func(ctx context.Context, st *personaState) error {
		return s.newOrchestrator(st).Run(ctx)
	})
	return nil
}

func (s *Session) claim(personaID string) (*personaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.personas[personaID]
	if !ok {
		return nil, ErrUnknownPersona
	}
	if st.running {
		return nil, ErrChainActive
	}
	s.claimLocked(st)
	return st, nil
}

func (s *Session) claimLocked(states ...*personaState) {
	for _, st := range states {
		st.running = true
		s.running++
		s.wg.Add(1)
		if s.running == 1 && s.hooks.busy != nil {
			s.hooks.busy(s)
		}
	}
}

func (s *Session) release(st *personaState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.running = false
	s.running--
	if s.running == 0 && s.hooks.idle != nil {
		s.hooks.idle(s)
	}
	s.wg.Done()
}

func (s *Session) refs(st *personaState) [2]conversation.Ref {
	return [2]conversation.Ref{
		{ConversationID: st.record.PublicID, Log: conversation.LogPersona},
		{ConversationID: st.record.PublicID, Log: conversation.LogAssistant},
	}
}

// launch runs fn for every claimed state, at most Concurrency at a time.
func (s *Session) launch(states []*personaState, fn func(context.Context, *personaState) error) {
	limit := s.deps.Concurrency
	if limit <= 0 {
		limit = len(states)
	}
	go func() {
		var g errgroup.Group
		g.SetLimit(limit)
		for _, st := range states {
			g.Go(func() error {
				defer s.release(st)
				s.execute(st, fn)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (s *Session) execute(st *personaState, fn func(context.Context, *personaState) error) {
	ctx := s.baseCtx
	personaID := st.persona.PublicID
	log := s.log.With().Str("persona_id", personaID).Logger()

	s.transition(ctx, st, status.StatusInProgress, "")

	run := func(ctx context.Context) error {
		if err := s.ensureThreads(ctx, st); err != nil {
			return err
		}
		return fn(ctx, st)
	}

	var err error
	if s.deps.Instrumenter != nil {
		err = s.deps.Instrumenter.InstrumentChain(ctx, s.run.PublicID, personaID, run)
	} else {
		err = run(ctx)
	}

	switch {
	case err == nil:
		s.transition(ctx, st, status.StatusCompleted, "")
	case errors.Is(err, context.Canceled):
		log.Warn().Msg("chain interrupted")
		s.transition(context.WithoutCancel(ctx), st, status.StatusCancelled, "")
	default:
		log.Error().Err(err).Msg("chain failed")
		s.transition(ctx, st, status.StatusFailed, err.Error())
	}
}

// ensureThreads creates the provider threads a chain still lacks, seeded with
// the history each side has to see.
func (s *Session) ensureThreads(ctx context.Context, st *personaState) error {
	s.mu.Lock()
	personaThread, assistantThread := st.record.PersonaThreadID, st.record.AssistantThreadID
	personaSeed, assistantSeed := st.personaSeed, st.assistantSeed
	s.mu.Unlock()

	if personaThread != "" && assistantThread != "" {
		return nil
	}

	var err error
	if personaThread == "" {
		if personaThread, err = s.deps.Provider.CreateThread(ctx, personaSeed); err != nil {
			return fmt.Errorf("create persona thread: %w", err)
		}
	}
	if assistantThread == "" {
		if assistantThread, err = s.deps.Provider.CreateThread(ctx, assistantSeed); err != nil {
			return fmt.Errorf("create assistant thread: %w", err)
		}
	}

	s.mu.Lock()
	st.record.PersonaThreadID = personaThread
	st.record.AssistantThreadID = assistantThread
	st.personaSeed, st.assistantSeed = nil, nil
	record := *st.record
	s.mu.Unlock()

	if err := s.deps.Runs.UpdateConversation(ctx, &record); err != nil {
		s.log.Error().Err(err).Str("persona_id", st.persona.PublicID).Msg("failed to store thread ids")
	}
	return nil
}

// resetThreads drops the current provider threads; the next chain creates new
// ones seeded with the given histories.
func (s *Session) resetThreads(st *personaState, personaSeed, assistantSeed []provider.ThreadMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.record.PersonaThreadID = ""
	st.record.AssistantThreadID = ""
	st.record.Error = ""
	st.personaSeed = personaSeed
	st.assistantSeed = assistantSeed
}

func (s *Session) newOrchestrator(st *personaState) *orchestrator.Orchestrator {
	s.mu.Lock()
	record := *st.record
	s.mu.Unlock()

	instructions := st.persona.Prompt
	if c := strings.TrimSpace(s.run.Config.Context); c != "" {
		instructions += "\n\nSituation: " + c
	}
	seed := ""
	if st.persona.HasSeed() {
		seed = strings.TrimSpace(st.persona.OpeningQuestion)
	}
	cfg := orchestrator.Config{
		ConversationID: record.PublicID,
		PersonaID:      st.persona.PublicID,
		TurnBudget:     s.run.Config.TurnBudget(),
		Seed:           seed,
		Persona: orchestrator.Side{
			ThreadID:     record.PersonaThreadID,
			AssistantID:  s.deps.PersonaAssistantID,
			Instructions: instructions,
		},
		Assistant: orchestrator.Side{
			ThreadID:    record.AssistantThreadID,
			AssistantID: s.run.Config.AssistantID,
			FileIDs:     s.run.Config.FileIDs,
		},
	}
	return orchestrator.New(cfg, st.conv, s.deps.Generator, s.deps.Store, s.events.Publish, s.log)
}

// transition moves a persona conversation to target and refreshes the run
// status.
func (s *Session) transition(ctx context.Context, st *personaState, target status.Status, reason string) {
	s.mu.Lock()
	next, err := st.record.Status.TransitionTo(target)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn().
			Str("persona_id", st.persona.PublicID).
			Str("from", string(st.record.Status)).
			Str("to", string(target)).
			Msg("ignoring invalid status transition")
		return
	}
	st.record.Status = next
	st.record.Error = reason
	record := *st.record

	statuses := make([]status.Status, 0, len(s.personas))
	for _, id := range s.order {
		statuses = append(statuses, s.personas[id].record.Status)
	}
	runStatus := status.Aggregate(statuses)
	runChanged := runStatus != s.run.Status
	s.run.Status = runStatus
	runID := s.run.ID
	s.mu.Unlock()

	if err := s.deps.Runs.UpdateConversation(ctx, &record); err != nil {
		s.log.Error().Err(err).Str("persona_id", st.persona.PublicID).Msg("failed to store conversation status")
	}
	if runChanged {
		if err := s.deps.Runs.UpdateRunStatus(ctx, runID, runStatus); err != nil {
			s.log.Error().Err(err).Msg("failed to store run status")
		}
	}
}
