package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	providerErrors "github.com/janhq/persona-sim/services/simulation-api/internal/domain/errors"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/generation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/orchestrator"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider/providertest"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/retry"
)

const (
	personaAssistant = "asst_persona"
	tutorAssistant   = "asst_tutor"
)

type harness struct {
	client *providertest.Client
	store  *conversation.MemoryStore
	conv   *conversation.Conversation

	mu     sync.Mutex
	events []orchestrator.Event
}

func newHarness() *harness {
	return &harness{
		client: providertest.New(),
		store:  conversation.NewMemoryStore(),
		conv:   conversation.New(nil),
	}
}

func (h *harness) orchestrator(maxTurnsPerSide int, seed string) *orchestrator.Orchestrator {
	cfg := generation.Config{
		Retry:          retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, Backoff: retry.BackoffLinear},
		SettleInterval: time.Millisecond,
		SettlePolls:    2,
	}
	gen := generation.NewGenerator(h.client, h.store, cfg, zerolog.Nop())
	return orchestrator.New(orchestrator.Config{
		ConversationID: "conv_1",
		PersonaID:      "persona_1",
		TurnBudget:     2 * maxTurnsPerSide,
		Seed:           seed,
		Persona:        orchestrator.Side{ThreadID: "thread_persona", AssistantID: personaAssistant, Instructions: "You are a curious student."},
		Assistant:      orchestrator.Side{ThreadID: "thread_tutor", AssistantID: tutorAssistant, FileIDs: []string{"file_1"}},
	}, h.conv, gen, h.store, func(ev orchestrator.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
	}, zerolog.Nop())
}

func (h *harness) countEvents(t orchestrator.EventType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func assertAlternates(t *testing.T, turns []conversation.Turn) {
	t.Helper()
	for i, turn := range turns {
		want := conversation.RolePersona
		if i%2 == 1 {
			want = conversation.RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
		assert.False(t, turn.IsLoading, "turn %d still loading", i)
	}
}

func TestRun_SeededConversationReachesBudget(t *testing.T) {
	h := newHarness()
	seed := "Can you explain photosynthesis simply?"

	err := h.orchestrator(3, seed).Run(context.Background())
	require.NoError(t, err)

	turns := h.conv.Turns()
	require.Len(t, turns, 6)
	assertAlternates(t, turns)
	assert.Equal(t, seed, turns[0].Content)
	assert.Equal(t, "asst_tutor #1", turns[1].Content)
	assert.Equal(t, "asst_persona #1", turns[2].Content)
	assert.Equal(t, "asst_tutor #3", turns[5].Content)

	calls := h.client.CreateCalls()
	require.Len(t, calls, 5, "seeded question is not generated")
	assert.Equal(t, seed, calls[0].Input)
	assert.Equal(t, tutorAssistant, calls[0].AssistantID)
	assert.Equal(t, []string{"file_1"}, calls[0].FileIDs)
	assert.Equal(t, personaAssistant, calls[1].AssistantID)
	assert.Equal(t, "asst_tutor #1", calls[1].Input)
	assert.Equal(t, "You are a curious student.", calls[1].Instructions)

	stored, err := conversation.Load(context.Background(), h.store, "conv_1")
	require.NoError(t, err)
	require.Len(t, stored, 6)
	for i := range stored {
		assert.Equal(t, turns[i].Content, stored[i].Content)
	}

	assert.Equal(t, 6, h.countEvents(orchestrator.EventTurnCompleted))
	assert.Equal(t, 5, h.countEvents(orchestrator.EventTurnStarted))
	assert.Equal(t, 1, h.countEvents(orchestrator.EventChainFinished))
}

func TestRun_UnseededStartsWithGeneratedPersonaTurn(t *testing.T) {
	h := newHarness()

	err := h.orchestrator(2, "").Run(context.Background())
	require.NoError(t, err)

	turns := h.conv.Turns()
	require.Len(t, turns, 4)
	assertAlternates(t, turns)
	assert.Equal(t, "asst_persona #1", turns[0].Content)

	calls := h.client.CreateCalls()
	require.Len(t, calls, 4)
	assert.Equal(t, personaAssistant, calls[0].AssistantID)
	assert.Empty(t, calls[0].Input, "first persona turn has no input")
}

func TestRun_MidStreamFailureYieldsOneErrorTurnAndContinues(t *testing.T) {
	h := newHarness()
	h.client.Responder = func(req provider.StreamRunRequest, n int) providertest.Response {
		if req.AssistantID == tutorAssistant && n == 1 {
			return providertest.Fail("Photosynthesis is", "server_error", "overloaded")
		}
		return providertest.Reply(req.AssistantID + " ok")
	}

	err := h.orchestrator(3, "What is photosynthesis?").Run(context.Background())
	require.NoError(t, err)

	turns := h.conv.Turns()
	require.Len(t, turns, 6)
	assertAlternates(t, turns)

	var errorTurns []conversation.Turn
	for _, turn := range turns {
		if turn.IsError {
			errorTurns = append(errorTurns, turn)
		}
	}
	require.Len(t, errorTurns, 1)
	assert.Contains(t, errorTurns[0].Content, "server_error")
	assert.Contains(t, errorTurns[0].Content, "overloaded")
	assert.Equal(t, conversation.RoleAssistant, turns[1].Role)
	assert.True(t, turns[1].IsError)

	calls := h.client.CreateCalls()
	assert.Equal(t, turns[1].Content, calls[1].Input, "persona answers the error turn")
}

func TestRun_RetryExhaustionStopsWithErrorTurn(t *testing.T) {
	h := newHarness()
	h.client.Responder = func(req provider.StreamRunRequest, n int) providertest.Response {
		if req.AssistantID == personaAssistant && n >= 2 {
			return providertest.Response{CreateErr: providerErrors.FromHTTPStatus(503, "", "Service Unavailable")}
		}
		return providertest.Reply(req.AssistantID + " ok")
	}

	err := h.orchestrator(3, "").Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrRunCreationExhausted)

	turns := h.conv.Turns()
	require.Len(t, turns, 3)
	assertAlternates(t, turns)
	last := turns[len(turns)-1]
	assert.True(t, last.IsError)
	assert.Contains(t, last.Content, "server_error")
}

func TestResume_ContinuesWithAssistantTurn(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	for _, turn := range []struct {
		log     conversation.Log
		role    conversation.Role
		content string
	}{
		{conversation.LogPersona, conversation.RolePersona, "q1"},
		{conversation.LogAssistant, conversation.RoleAssistant, "a1"},
		{conversation.LogPersona, conversation.RolePersona, "edited q2"},
	} {
		stored, err := h.store.Append(ctx, conversation.Ref{ConversationID: "conv_1", Log: turn.log}, turn.role, turn.content, false)
		require.NoError(t, err)
		h.conv.Append(stored)
	}

	err := h.orchestrator(3, "q1").Resume(ctx, "edited q2")
	require.NoError(t, err)

	turns := h.conv.Turns()
	require.Len(t, turns, 6)
	assertAlternates(t, turns)
	assert.Equal(t, "edited q2", turns[2].Content)

	calls := h.client.CreateCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, tutorAssistant, calls[0].AssistantID)
	assert.Equal(t, "edited q2", calls[0].Input)
}

func TestRun_PersistenceFailureKeepsChainGoing(t *testing.T) {
	h := newHarness()
	h.store.FailWith(func(op string, ref conversation.Ref) error {
		if op == "append" {
			return errors.New("db down")
		}
		return nil
	})

	err := h.orchestrator(2, "seeded").Run(context.Background())
	require.NoError(t, err)

	turns := h.conv.Turns()
	require.Len(t, turns, 4)
	assertAlternates(t, turns)

	for i, turn := range turns {
		assert.False(t, turn.CreatedAt.IsZero(), "in-memory turn %d is stamped", i)
	}

	h.store.FailWith(nil)
	stored, err := conversation.Load(context.Background(), h.store, "conv_1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRun_ContextCancelledStops(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.client.Responder = func(req provider.StreamRunRequest, n int) providertest.Response {
		if n == 2 {
			cancel()
		}
		return providertest.Reply(req.AssistantID + " ok")
	}

	err := h.orchestrator(5, "").Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, h.conv.Len(), 10)
	assertAlternates(t, h.conv.Turns())
}
