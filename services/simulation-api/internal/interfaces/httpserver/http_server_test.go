package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/persona-sim/services/simulation-api/internal/config"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/auth"
	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/handlers"
)

type listOnlyPersonas struct {
	handlers.PersonaService
	owner string
}

func (l *listOnlyPersonas) List(ctx context.Context, ownerID string) ([]*persona.Persona, error) {
	l.owner = ownerID
	return nil, nil
}

func newTestServer(t *testing.T, cfg *config.Config, ready ReadinessCheck) (*HttpServer, *listOnlyPersonas) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	validator, err := auth.NewValidator(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	personas := &listOnlyPersonas{}
	provider := handlers.NewProvider(personas, nil, zerolog.Nop())
	return New(cfg, zerolog.Nop(), provider, validator, Telemetry{}, ready), personas
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestPublicRoutes(t *testing.T) {
	srv, _ := newTestServer(t, &config.Config{ServiceName: "simulation-api", DefaultOwnerID: "local"}, nil)
	h := srv.Handler()

	for _, path := range []string{"/", "/healthz", "/readyz", "/health/auth"} {
		w := get(h, path)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := get(h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "jan_simulation_api_requests_total"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestReadyz_ReportsDependencyFailure(t *testing.T) {
	srv, _ := newTestServer(t, &config.Config{DefaultOwnerID: "local"}, func(context.Context) error {
		return errors.New("database unreachable")
	})

	w := get(srv.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database unreachable")
}

func TestV1Routes_UseDefaultOwnerWhenAuthDisabled(t *testing.T) {
	srv, personas := newTestServer(t, &config.Config{DefaultOwnerID: "local"}, nil)

	w := get(srv.Handler(), "/v1/personas")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "local", personas.owner)
}

func TestV1Routes_RequireTokenWhenAuthEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{AuthEnabled: true, AuthIssuer: "https://issuer.example"}
	validator := auth.NewValidatorWithKeyfunc(cfg, zerolog.Nop(), nil)
	provider := handlers.NewProvider(&listOnlyPersonas{}, nil, zerolog.Nop())
	srv := New(cfg, zerolog.Nop(), provider, validator, Telemetry{}, nil)

	assert.Equal(t, http.StatusUnauthorized, get(srv.Handler(), "/v1/personas").Code)
	assert.Equal(t, http.StatusOK, get(srv.Handler(), "/healthz").Code)
}
