package main

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/janhq/persona-sim/pkg/observability"
	"github.com/janhq/persona-sim/pkg/observability/chains"
	"github.com/janhq/persona-sim/pkg/telemetry"
	"github.com/janhq/persona-sim/services/simulation-api/internal/config"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/citation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/generation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/retry"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/session"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/database"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/llmprovider"
	simobs "github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/observability"
	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver"
)

// previewRunes bounds the conversation text that reaches logs.
const previewRunes = 120

func newObservabilityConfig(cfg *config.Config) observability.Config {
	oc := observability.DefaultConfig(cfg.ServiceName)
	oc.ServiceVersion = cfg.ServiceVersion
	oc.Environment = cfg.Environment
	oc.TracingEnabled = cfg.EnableTracing
	oc.MetricsEnabled = cfg.EnableMetrics
	oc.OTLPEndpoint = cfg.OTLPEndpoint
	oc.SamplingRate = cfg.SamplingRate
	return oc
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func newProviderClient(cfg *config.Config) *llmprovider.Client {
	return llmprovider.NewClient(llmprovider.Config{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.ProviderTimeout,
	})
}

func newSanitizer(cfg *config.Config) *telemetry.Sanitizer {
	return telemetry.NewSanitizer(telemetry.ParsePIILevel(cfg.PIILevel), cfg.ServiceName)
}

func newGenerationConfig(cfg *config.Config) generation.Config {
	policy := retry.RunCreationPolicy()
	policy.MaxRetries = cfg.RunCreationRetries
	policy.InitialDelay = cfg.RunCreationInitialDelay
	policy.MaxDelay = cfg.RunCreationMaxDelay

	return generation.Config{
		Retry:          policy,
		SettleDelay:    cfg.CancelSettleDelay,
		SettleInterval: cfg.CancelSettleInterval,
		SettlePolls:    cfg.CancelSettlePolls,
		Delimiters:     citation.Delimiters{Open: cfg.CitationOpen, Close: cfg.CitationClose},
	}
}

func newGenerator(
	client provider.Client,
	store conversation.MessageStore,
	genCfg generation.Config,
	otel *observability.Provider,
	sanitizer *telemetry.Sanitizer,
	log zerolog.Logger,
) *generation.Generator {
	return generation.NewGenerator(client, store, genCfg, log,
		generation.WithInstrumentation(simobs.NewTurnInstrumentation(otel.Tracer)),
		generation.WithRedactor(sanitizer.Redactor(previewRunes)),
	)
}

func newChainInstrumentation(otel *observability.Provider) (*simobs.ChainInstrumentation, error) {
	inst, err := chains.NewInstrumenter(otel.Tracer, otel.Meter, "simulation_api")
	if err != nil {
		return nil, err
	}
	return simobs.NewChainInstrumentation(inst), nil
}

func newSessionManager(
	ctx context.Context,
	cfg *config.Config,
	client provider.Client,
	store conversation.MessageStore,
	runs testrun.Repository,
	gen *generation.Generator,
	instrumenter *simobs.ChainInstrumentation,
	personas *persona.Service,
	log zerolog.Logger,
) (*session.Manager, error) {
	return session.NewManager(ctx, session.Dependencies{
		Provider:           client,
		Store:              store,
		Runs:               runs,
		Generator:          gen,
		Instrumenter:       instrumenter,
		PersonaAssistantID: cfg.PersonaAssistantID,
		Concurrency:        cfg.ChainConcurrency,
		Log:                log,
	}, personas, cfg.SessionCacheSize)
}

func newTelemetry(otel *observability.Provider) httpserver.Telemetry {
	return httpserver.Telemetry{Tracer: otel.Tracer, Meter: otel.Meter}
}

func newReadinessCheck(db *gorm.DB) httpserver.ReadinessCheck {
	return func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
}
