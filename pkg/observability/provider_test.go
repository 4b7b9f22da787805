package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledUsesNoop(t *testing.T) {
	p, err := Init(context.Background(), DefaultConfig("simulation-api"))
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Meter)

	_, span := p.Tracer.Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{ServiceName: "svc", SamplingRate: 3}.withDefaults()

	assert.Equal(t, 1.0, cfg.SamplingRate)
	assert.Equal(t, 5*time.Second, cfg.TraceBatchTimeout)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
}
