// Package generation produces a single conversation turn from a streaming
// provider run.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/citation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	providerErrors "github.com/janhq/persona-sim/services/simulation-api/internal/domain/errors"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/retry"
)

var (
	// ErrRunCreationExhausted wraps the last error once run creation stops retrying.
	ErrRunCreationExhausted = errors.New("run creation exhausted")
	// ErrPersistTurn wraps a store failure. The returned turn is still valid.
	ErrPersistTurn = errors.New("persist turn")
)

// Outcome describes how a turn ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed is a run that failed mid-stream; the turn holds the error.
	OutcomeFailed Outcome = "failed"
	// OutcomeAborted is a run that could not be created; the chain should stop.
	OutcomeAborted Outcome = "aborted"
)

// Config tunes the cancel pre-check, retries and citation stripping.
type Config struct {
	Retry          retry.Policy
	SettleDelay    time.Duration
	SettleInterval time.Duration
	SettlePolls    int
	Delimiters     citation.Delimiters
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Retry:          retry.RunCreationPolicy(),
		SettleDelay:    time.Second,
		SettleInterval: 500 * time.Millisecond,
		SettlePolls:    10,
		Delimiters:     citation.DefaultDelimiters,
	}
}

// Request describes one turn to generate.
type Request struct {
	Ref  conversation.Ref
	Role conversation.Role
	Run  provider.StreamRunRequest
	// OnDelta receives the filtered content accumulated so far.
	OnDelta func(content string)
}

// Result is the generated turn.
type Result struct {
	Turn    conversation.Turn
	Outcome Outcome
}

// Instrumentation receives generator telemetry.
type Instrumentation interface {
	StartTurn(ctx context.Context, role conversation.Role, threadID string) (context.Context, func(Outcome, error))
	RunsCancelled(role conversation.Role, n int)
	SettleTimedOut(role conversation.Role)
	RunCreationRetried(role conversation.Role)
}

// Option configures a Generator.
type Option func(*Generator)

// WithInstrumentation sets the telemetry sink.
func WithInstrumentation(inst Instrumentation) Option {
	return func(g *Generator) { g.inst = inst }
}

// WithRedactor sets the function applied to turn content before logging.
func WithRedactor(fn func(string) string) Option {
	return func(g *Generator) { g.redact = fn }
}

// Generator runs the cancel, create, stream, persist sequence for one turn.
type Generator struct {
	client     provider.Client
	store      conversation.MessageStore
	cfg        Config
	classifier *providerErrors.Classifier
	inst       Instrumentation
	redact     func(string) string
	now        func() time.Time
	log        zerolog.Logger
}

// NewGenerator creates a generator.
func NewGenerator(client provider.Client, store conversation.MessageStore, cfg Config, log zerolog.Logger, opts ...Option) *Generator {
	g := &Generator{
		client:     client,
		store:      store,
		cfg:        cfg,
		classifier: providerErrors.NewClassifier(),
		inst:       nopInstrumentation{},
		redact:     func(string) string { return "" },
		now:        time.Now,
		log:        log.With().Str("component", "turn-generator").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces, filters and persists one turn.
//
// A failed run becomes an error turn with OutcomeFailed and a nil error. When
// run creation gives up the error turn is returned with OutcomeAborted and an
// error wrapping ErrRunCreationExhausted. A store failure is returned wrapped
// in ErrPersistTurn alongside the unsaved turn.
func (g *Generator) Generate(ctx context.Context, req Request) (res Result, err error) {
	log := g.log.With().
		Str("thread_id", req.Run.ThreadID).
		Str("side", string(req.Role)).
		Str("conversation_id", req.Ref.ConversationID).
		Logger()

	ctx, finish := g.inst.StartTurn(ctx, req.Role, req.Run.ThreadID)
	defer func() { finish(res.Outcome, err) }()

	if err := g.cancelActiveRuns(ctx, log, req); err != nil {
		return Result{}, err
	}

	stream, err := retry.Do(ctx, g.cfg.Retry, func(ctx context.Context, attempt int) (provider.Stream, error) {
		if attempt > 0 {
			g.inst.RunCreationRetried(req.Role)
			log.Warn().Int("attempt", attempt+1).Int("max_attempts", g.cfg.Retry.Attempts()).Msg("retrying run creation")
		}
		s, err := g.client.CreateStreamingRun(ctx, req.Run)
		if err != nil && g.classifier.Classify(err).IsFatal() {
			return nil, retry.Permanent(err)
		}
		return s, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		log.Error().Err(err).Msg("run creation failed")
		code, message := describe(err)
		turn, perr := g.persist(ctx, log, req, conversation.ErrorContent(code, message), true)
		return Result{Turn: turn, Outcome: OutcomeAborted}, errors.Join(fmt.Errorf("%w: %w", ErrRunCreationExhausted, err), perr)
	}
	defer stream.Close()

	content, failed, err := g.consume(ctx, log, stream, req.OnDelta)
	if err != nil {
		return Result{}, err
	}

	outcome := OutcomeCompleted
	if failed {
		outcome = OutcomeFailed
	}
	turn, perr := g.persist(ctx, log, req, content, failed)
	return Result{Turn: turn, Outcome: outcome}, perr
}

// consume reads the stream to its end. failed is true when content is an
// error turn. err is only set when ctx ends.
func (g *Generator) consume(ctx context.Context, log zerolog.Logger, stream provider.Stream, onDelta func(string)) (content string, failed bool, err error) {
	filter := citation.NewFilter(g.cfg.Delimiters)
	var b strings.Builder

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", false, ctxErr
			}
			log.Warn().Err(err).Int("partial_len", b.Len()).Msg("stream read failed")
			return conversation.ErrorContent(providerErrors.ErrCodeStream, err.Error()), true, nil
		}

		switch ev.Type {
		case provider.EventDelta:
			if out := filter.Write(ev.Text); out != "" {
				b.WriteString(out)
				if onDelta != nil {
					onDelta(b.String())
				}
			}
		case provider.EventFailed:
			log.Warn().
				Str("run_id", ev.RunID).
				Str("code", ev.Code).
				Str("message", ev.Message).
				Int("partial_len", b.Len()).
				Msg("run failed mid-stream")
			return conversation.ErrorContent(ev.Code, ev.Message), true, nil
		case provider.EventCompleted:
			b.WriteString(filter.Flush())
			return strings.TrimSpace(b.String()), false, nil
		}
	}

	b.WriteString(filter.Flush())
	return strings.TrimSpace(b.String()), false, nil
}

func (g *Generator) persist(ctx context.Context, log zerolog.Logger, req Request, content string, isError bool) (conversation.Turn, error) {
	turn, err := g.store.Append(ctx, req.Ref, req.Role, content, isError)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist turn, keeping in-memory copy")
		return conversation.Turn{
			Role:      req.Role,
			Content:   content,
			CreatedAt: g.now().UTC(),
			IsError:   isError,
		}, fmt.Errorf("%w: %w", ErrPersistTurn, err)
	}
	log.Debug().
		Str("message_id", turn.ID).
		Bool("is_error", isError).
		Str("content_preview", g.redact(content)).
		Msg("turn persisted")
	return turn, nil
}

func describe(err error) (code, message string) {
	var pe *providerErrors.ProviderError
	if errors.As(err, &pe) {
		return pe.Code, pe.Message
	}
	return "run_creation_failed", err.Error()
}

type nopInstrumentation struct{}

func (nopInstrumentation) StartTurn(ctx context.Context, _ conversation.Role, _ string) (context.Context, func(Outcome, error)) {
	return ctx, func(Outcome, error) {}
}
func (nopInstrumentation) RunsCancelled(conversation.Role, int)  {}
func (nopInstrumentation) SettleTimedOut(conversation.Role)      {}
func (nopInstrumentation) RunCreationRetried(conversation.Role) {}
