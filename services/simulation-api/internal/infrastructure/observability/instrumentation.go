package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/janhq/persona-sim/pkg/observability/chains"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/generation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/session"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/metrics"
)

// TurnInstrumentation reports generator activity as spans and Prometheus
// metrics.
type TurnInstrumentation struct {
	tracer trace.Tracer
	now    func() time.Time
}

// NewTurnInstrumentation creates a turn instrumentation. A nil tracer uses
// the global one.
func NewTurnInstrumentation(tracer trace.Tracer) *TurnInstrumentation {
	if tracer == nil {
		tracer = GetTracer()
	}
	return &TurnInstrumentation{tracer: tracer, now: time.Now}
}

func (t *TurnInstrumentation) StartTurn(ctx context.Context, role conversation.Role, threadID string) (context.Context, func(generation.Outcome, error)) {
	side := string(role)
	start := t.now()
	ctx, span := StartTurnSpan(ctx, t.tracer, side, threadID)

	return ctx, func(outcome generation.Outcome, err error) {
		defer span.End()
		if outcome == "" {
			outcome = generation.OutcomeAborted
		}
		span.SetAttributes(attribute.String("turn.outcome", string(outcome)))
		switch {
		case err != nil:
			RecordError(span, err, "fatal")
		case outcome == generation.OutcomeFailed:
			span.AddEvent("run.failed")
		}
		metrics.RecordTurn(side, string(outcome), t.now().Sub(start).Seconds())
	}
}

func (t *TurnInstrumentation) RunsCancelled(role conversation.Role, n int) {
	if n <= 0 {
		return
	}
	metrics.RunsCancelledTotal.WithLabelValues(string(role)).Add(float64(n))
}

func (t *TurnInstrumentation) SettleTimedOut(role conversation.Role) {
	metrics.SettleTimeoutsTotal.WithLabelValues(string(role)).Inc()
}

func (t *TurnInstrumentation) RunCreationRetried(role conversation.Role) {
	metrics.RunCreationRetriesTotal.WithLabelValues(string(role)).Inc()
}

// ChainInstrumentation tracks running persona chains. OTEL spans and metrics
// come from the shared chain instrumenter; the Prometheus gauge and counter
// are kept alongside.
type ChainInstrumentation struct {
	otel *chains.Instrumenter
}

// NewChainInstrumentation wraps an OTEL chain instrumenter, which may be nil.
func NewChainInstrumentation(inst *chains.Instrumenter) *ChainInstrumentation {
	return &ChainInstrumentation{otel: inst}
}

func (c *ChainInstrumentation) InstrumentChain(ctx context.Context, runID, personaID string, fn func(context.Context) error) error {
	metrics.ActiveChains.Inc()
	defer metrics.ActiveChains.Dec()

	var err error
	if c.otel != nil {
		err = c.otel.Instrument(ctx, runID, personaID, fn)
	} else {
		err = fn(ctx)
	}
	metrics.RecordChain(chains.Result(err))
	return err
}

var (
	_ generation.Instrumentation = (*TurnInstrumentation)(nil)
	_ session.ChainInstrumenter  = (*ChainInstrumentation)(nil)
)
