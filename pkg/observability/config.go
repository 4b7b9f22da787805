package observability

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Config holds the OTEL settings of a service.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TracingEnabled bool
	MetricsEnabled bool
	// OTLPEndpoint is host:port of an OTLP/HTTP collector.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	SamplingRate float64

	TraceBatchTimeout time.Duration
	MetricInterval    time.Duration
	ResourceAttrs     []attribute.KeyValue
}

// DefaultConfig returns a config with both signals disabled.
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName:       serviceName,
		ServiceVersion:    "dev",
		Environment:       "development",
		OTLPEndpoint:      "localhost:4318",
		SamplingRate:      1.0,
		TraceBatchTimeout: 5 * time.Second,
		MetricInterval:    15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig(c.ServiceName)
	if c.TraceBatchTimeout <= 0 {
		c.TraceBatchTimeout = def.TraceBatchTimeout
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = def.MetricInterval
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		c.SamplingRate = def.SamplingRate
	}
	return c
}
