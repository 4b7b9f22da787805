package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/janhq/persona-sim/pkg/observability/chains"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/generation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/metrics"
)

func TestTurnInstrumentation_SpanAndCounters(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	inst := NewTurnInstrumentation(tp.Tracer("test"))

	side := string(conversation.RolePersona)
	before := testutil.ToFloat64(metrics.TurnsTotal.WithLabelValues(side, string(generation.OutcomeFailed)))

	ctx, finish := inst.StartTurn(context.Background(), conversation.RolePersona, "thread_1")
	require.NotNil(t, ctx)
	finish(generation.OutcomeFailed, nil)

	after := testutil.ToFloat64(metrics.TurnsTotal.WithLabelValues(side, string(generation.OutcomeFailed)))
	assert.Equal(t, before+1, after)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "turn.generate", spans[0].Name())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "run.failed", spans[0].Events()[0].Name)
}

func TestTurnInstrumentation_ErrorMarksSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	inst := NewTurnInstrumentation(tp.Tracer("test"))

	_, finish := inst.StartTurn(context.Background(), conversation.RoleAssistant, "thread_2")
	finish(generation.OutcomeAborted, errors.New("exhausted"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}

func TestTurnInstrumentation_Counters(t *testing.T) {
	inst := NewTurnInstrumentation(nil)
	side := string(conversation.RoleAssistant)

	cancelled := testutil.ToFloat64(metrics.RunsCancelledTotal.WithLabelValues(side))
	inst.RunsCancelled(conversation.RoleAssistant, 2)
	inst.RunsCancelled(conversation.RoleAssistant, 0)
	assert.Equal(t, cancelled+2, testutil.ToFloat64(metrics.RunsCancelledTotal.WithLabelValues(side)))

	timeouts := testutil.ToFloat64(metrics.SettleTimeoutsTotal.WithLabelValues(side))
	inst.SettleTimedOut(conversation.RoleAssistant)
	assert.Equal(t, timeouts+1, testutil.ToFloat64(metrics.SettleTimeoutsTotal.WithLabelValues(side)))

	retries := testutil.ToFloat64(metrics.RunCreationRetriesTotal.WithLabelValues(side))
	inst.RunCreationRetried(conversation.RoleAssistant)
	assert.Equal(t, retries+1, testutil.ToFloat64(metrics.RunCreationRetriesTotal.WithLabelValues(side)))
}

func TestChainInstrumentation_RecordsResult(t *testing.T) {
	otelInst, err := chains.NewInstrumenter(
		sdktrace.NewTracerProvider().Tracer("test"),
		metricnoop.NewMeterProvider().Meter("test"),
		"simulation_api",
	)
	require.NoError(t, err)
	inst := NewChainInstrumentation(otelInst)

	failedBefore := testutil.ToFloat64(metrics.ChainsTotal.WithLabelValues(chains.ResultFailed))
	cancelledBefore := testutil.ToFloat64(metrics.ChainsTotal.WithLabelValues(chains.ResultCancelled))

	var activeDuring float64
	boom := errors.New("boom")
	err = inst.InstrumentChain(context.Background(), "run_1", "persona_1", func(context.Context) error {
		activeDuring = testutil.ToFloat64(metrics.ActiveChains)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.GreaterOrEqual(t, activeDuring, 1.0)

	err = NewChainInstrumentation(nil).InstrumentChain(context.Background(), "run_1", "persona_2", func(context.Context) error {
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, failedBefore+1, testutil.ToFloat64(metrics.ChainsTotal.WithLabelValues(chains.ResultFailed)))
	assert.Equal(t, cancelledBefore+1, testutil.ToFloat64(metrics.ChainsTotal.WithLabelValues(chains.ResultCancelled)))
}
