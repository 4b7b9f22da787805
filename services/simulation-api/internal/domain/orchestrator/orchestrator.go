// Package orchestrator alternates persona and assistant turns for one
// persona's conversation until the turn budget is spent.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/generation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
)

// TurnGenerator produces one turn.
type TurnGenerator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

// Side is one provider context of the dialogue.
type Side struct {
	ThreadID     string
	AssistantID  string
	Instructions string
	FileIDs      []string
}

// Config describes one persona's chain.
type Config struct {
	ConversationID string
	PersonaID      string
	// TurnBudget is 2 x max turns per side.
	TurnBudget int
	// Seed, when set, is committed verbatim as the first persona turn.
	Seed      string
	Persona   Side
	Assistant Side
}

// stateFn is one step of the chain. It returns the next step, or nil when the
// chain is over.
type stateFn func(ctx context.Context) stateFn

// Orchestrator drives one persona's conversation. Run and Resume must not be
// called concurrently.
type Orchestrator struct {
	cfg   Config
	conv  *conversation.Conversation
	gen   TurnGenerator
	store conversation.MessageStore
	sink  Sink
	log   zerolog.Logger
	err   error
}

// New creates an orchestrator over conv. sink may be nil.
func New(cfg Config, conv *conversation.Conversation, gen TurnGenerator, store conversation.MessageStore, sink Sink, log zerolog.Logger) *Orchestrator {
	if sink == nil {
		sink = func(Event) {}
	}
	return &Orchestrator{
		cfg:   cfg,
		conv:  conv,
		gen:   gen,
		store: store,
		sink:  sink,
		log: log.With().
			Str("component", "orchestrator").
			Str("persona_id", cfg.PersonaID).
			Str("conversation_id", cfg.ConversationID).
			Logger(),
	}
}

// Run starts the chain from the beginning: the seeded question if there is
// one, otherwise a generated persona turn. It returns nil once the budget is
// reached, an error wrapping generation.ErrRunCreationExhausted when a run
// could not be started, or the context error.
func (o *Orchestrator) Run(ctx context.Context) error {
	return o.loop(ctx, o.start)
}

// Resume continues the chain with an assistant turn answering input.
func (o *Orchestrator) Resume(ctx context.Context, input string) error {
	return o.loop(ctx, o.assistantTurn(input))
}

func (o *Orchestrator) loop(ctx context.Context, state stateFn) error {
	o.err = nil
	for state != nil {
		if err := ctx.Err(); err != nil {
			o.err = err
			break
		}
		state = state(ctx)
	}

	o.log.Info().Int("turns", o.conv.Len()).AnErr("reason", o.err).Msg("chain finished")
	ev := Event{Type: EventChainFinished, PersonaID: o.cfg.PersonaID, Index: o.conv.Len()}
	if o.err != nil {
		ev.Error = o.err.Error()
	}
	o.sink(ev)
	return o.err
}

func (o *Orchestrator) start(ctx context.Context) stateFn {
	if o.cfg.Seed != "" {
		return o.seedPersonaTurn
	}
	return o.personaTurn("")
}

func (o *Orchestrator) seedPersonaTurn(ctx context.Context) stateFn {
	if o.budgetSpent() {
		return nil
	}
	ref := conversation.Ref{ConversationID: o.cfg.ConversationID, Log: conversation.LogPersona}
	turn, err := o.store.Append(ctx, ref, conversation.RolePersona, o.cfg.Seed, false)
	if err != nil {
		if ctx.Err() != nil {
			o.err = ctx.Err()
			return nil
		}
		o.log.Error().Err(err).Msg("failed to persist seeded question, continuing with in-memory turn")
		turn = conversation.Turn{Role: conversation.RolePersona, Content: o.cfg.Seed, CreatedAt: time.Now().UTC()}
	}
	o.conv.Append(turn)
	o.sink(Event{Type: EventTurnCompleted, PersonaID: o.cfg.PersonaID, Index: o.conv.Len() - 1, Turn: turn})
	return o.assistantTurn(turn.Content)
}

func (o *Orchestrator) personaTurn(input string) stateFn {
	return o.generateTurn(conversation.RolePersona, input)
}

func (o *Orchestrator) assistantTurn(input string) stateFn {
	return o.generateTurn(conversation.RoleAssistant, input)
}

func (o *Orchestrator) generateTurn(role conversation.Role, input string) stateFn {
	return func(ctx context.Context) stateFn {
		if o.budgetSpent() {
			return nil
		}

		side := o.cfg.Assistant
		if role == conversation.RolePersona {
			side = o.cfg.Persona
		}

		idx := o.conv.Begin(role)
		o.sink(Event{Type: EventTurnStarted, PersonaID: o.cfg.PersonaID, Index: idx, Turn: conversation.Turn{Role: role, IsLoading: true}})

		res, err := o.gen.Generate(ctx, generation.Request{
			Ref:  conversation.Ref{ConversationID: o.cfg.ConversationID, Log: conversation.LogFor(role)},
			Role: role,
			Run: provider.StreamRunRequest{
				ThreadID:     side.ThreadID,
				AssistantID:  side.AssistantID,
				Input:        input,
				Instructions: side.Instructions,
				FileIDs:      side.FileIDs,
			},
			OnDelta: func(content string) {
				o.conv.Update(idx, content)
				o.sink(Event{Type: EventTurnDelta, PersonaID: o.cfg.PersonaID, Index: idx, Turn: conversation.Turn{Role: role, Content: content, IsLoading: true}})
			},
		})

		switch {
		case errors.Is(err, generation.ErrRunCreationExhausted):
			o.commit(idx, res.Turn)
			o.err = err
			return nil
		case errors.Is(err, generation.ErrPersistTurn):
			o.log.Warn().Err(err).Str("side", string(role)).Msg("turn not persisted, continuing with in-memory turn")
		case err != nil:
			o.conv.Truncate(idx)
			o.err = err
			return nil
		}

		o.commit(idx, res.Turn)
		if role == conversation.RolePersona {
			return o.assistantTurn(res.Turn.Content)
		}
		return o.personaTurn(res.Turn.Content)
	}
}

func (o *Orchestrator) commit(idx int, turn conversation.Turn) {
	o.conv.Commit(idx, turn)
	o.sink(Event{Type: EventTurnCompleted, PersonaID: o.cfg.PersonaID, Index: idx, Turn: turn})
}

func (o *Orchestrator) budgetSpent() bool {
	return o.conv.Len() >= o.cfg.TurnBudget
}
