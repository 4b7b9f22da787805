// Package chains instruments long running conversation chains.
package chains

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Result labels.
const (
	ResultCompleted = "completed"
	ResultCancelled = "cancelled"
	ResultFailed    = "failed"
)

// Instrumenter wraps chain executions in a span and records OTEL metrics.
type Instrumenter struct {
	tracer        trace.Tracer
	chainsActive  metric.Int64UpDownCounter
	chainDuration metric.Float64Histogram
	chainsTotal   metric.Int64Counter
}

// NewInstrumenter creates an instrumenter whose instruments are prefixed with
// the service name.
func NewInstrumenter(tracer trace.Tracer, meter metric.Meter, serviceName string) (*Instrumenter, error) {
	chainsActive, err := meter.Int64UpDownCounter(
		fmt.Sprintf("jan_%s_chains_active", serviceName),
		metric.WithDescription("Number of running conversation chains"),
	)
	if err != nil {
		return nil, err
	}

	chainDuration, err := meter.Float64Histogram(
		fmt.Sprintf("jan_%s_chain_duration_seconds", serviceName),
		metric.WithDescription("Conversation chain duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chainsTotal, err := meter.Int64Counter(
		fmt.Sprintf("jan_%s_chains_total", serviceName),
		metric.WithDescription("Total conversation chains finished"),
	)
	if err != nil {
		return nil, err
	}

	return &Instrumenter{
		tracer:        tracer,
		chainsActive:  chainsActive,
		chainDuration: chainDuration,
		chainsTotal:   chainsTotal,
	}, nil
}

// Result classifies the error returned by a chain.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultCompleted
	case errors.Is(err, context.Canceled):
		return ResultCancelled
	default:
		return ResultFailed
	}
}

// Instrument runs fn inside a "chain.run" span.
func (i *Instrumenter) Instrument(ctx context.Context, runID, personaID string, fn func(context.Context) error) error {
	i.chainsActive.Add(ctx, 1)
	defer i.chainsActive.Add(context.WithoutCancel(ctx), -1)

	ctx, span := i.tracer.Start(ctx, "chain.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("persona.id", personaID),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	result := Result(err)

	span.SetAttributes(attribute.String("chain.result", result))
	if result == ResultFailed {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(attribute.String("result", result))
	mctx := context.WithoutCancel(ctx)
	i.chainDuration.Record(mctx, time.Since(start).Seconds(), attrs)
	i.chainsTotal.Add(mctx, 1, attrs)

	return err
}
