package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/janhq/persona-sim/pkg/observability"
	"github.com/janhq/persona-sim/services/simulation-api/internal/config"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/session"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/auth"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/database"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/logger"
	messagerepo "github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/repository/message"
	personarepo "github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/repository/persona"
	testrunrepo "github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/repository/testrun"
	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver"
	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/handlers"
)

// @title Simulation API
// @version 1.0
// @description Runs persona driven conversations against an assistant under test.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
type Application struct {
	httpServer *httpserver.HttpServer
	sessions   *session.Manager
	db         *gorm.DB
	otel       *observability.Provider
	cfg        *config.Config
	log        zerolog.Logger
}

func NewApplication(
	httpServer *httpserver.HttpServer,
	sessions *session.Manager,
	db *gorm.DB,
	otel *observability.Provider,
	cfg *config.Config,
	log zerolog.Logger,
) *Application {
	return &Application{
		httpServer: httpServer,
		sessions:   sessions,
		db:         db,
		otel:       otel,
		cfg:        cfg,
		log:        log,
	}
}

// Start serves HTTP until ctx is cancelled, then waits for running chains
// and releases resources.
func (a *Application) Start(ctx context.Context) error {
	serveErr := a.httpServer.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.sessions.Wait(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Int("active_sessions", a.sessions.ActiveSessions()).Msg("chains still running at shutdown")
	}
	if err := a.otel.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("shutdown telemetry")
	}
	if err := database.Close(a.db); err != nil {
		a.log.Error().Err(err).Msg("close database")
	}
	return serveErr
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otel, err := observability.Init(ctx, newObservabilityConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}

	db, err := newGormDB(ctx, newDatabaseConfig(cfg), log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	personaService := persona.NewService(personarepo.NewPostgresRepository(db), log)
	if cfg.PersonaSeedFile != "" {
		created, err := personaService.LoadSeedFile(ctx, cfg.PersonaSeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PersonaSeedFile).Msg("load persona seed")
		}
		log.Info().Int("created", created).Msg("persona seed loaded")
	}

	client := newProviderClient(cfg)
	store := messagerepo.NewPostgresStore(db)
	runs := testrunrepo.NewPostgresRepository(db)
	generator := newGenerator(client, store, newGenerationConfig(cfg), otel, newSanitizer(cfg), log)

	chainInstrumentation, err := newChainInstrumentation(otel)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize chain instrumentation")
	}

	// Chains outlive the request that started them but stop on shutdown.
	sessions, err := newSessionManager(ctx, cfg, client, store, runs, generator, chainInstrumentation, personaService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize session manager")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	handlerProvider := handlers.NewProvider(personaService, sessions, log)
	httpServer := httpserver.New(cfg, log, handlerProvider, authValidator, newTelemetry(otel), newReadinessCheck(db))
	app := NewApplication(httpServer, sessions, db, otel, cfg, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
