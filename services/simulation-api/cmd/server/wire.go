//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/janhq/persona-sim/pkg/observability"
	"github.com/janhq/persona-sim/services/simulation-api/internal/config"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/session"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/auth"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/llmprovider"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/logger"
	messagerepo "github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/repository/message"
	personarepo "github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/repository/persona"
	testrunrepo "github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/repository/testrun"
	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver"
	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/handlers"
)

var repositorySet = wire.NewSet(
	personarepo.NewPostgresRepository,
	wire.Bind(new(persona.Repository), new(*personarepo.PostgresRepository)),
	testrunrepo.NewPostgresRepository,
	wire.Bind(new(testrun.Repository), new(*testrunrepo.PostgresRepository)),
	messagerepo.NewPostgresStore,
	wire.Bind(new(conversation.MessageStore), new(*messagerepo.PostgresStore)),
)

var simulationSet = wire.NewSet(
	newProviderClient,
	wire.Bind(new(provider.Client), new(*llmprovider.Client)),
	newSanitizer,
	newGenerationConfig,
	newGenerator,
	newChainInstrumentation,
	persona.NewService,
	newSessionManager,
	wire.Bind(new(handlers.PersonaService), new(*persona.Service)),
	wire.Bind(new(handlers.RunService), new(*session.Manager)),
)

// BuildApplication assembles the simulation service with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		newObservabilityConfig,
		observability.Init,
		newDatabaseConfig,
		newGormDB,
		repositorySet,
		simulationSet,
		auth.NewValidator,
		handlers.NewProvider,
		newTelemetry,
		newReadinessCheck,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}
