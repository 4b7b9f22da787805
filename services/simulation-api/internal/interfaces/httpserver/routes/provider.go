package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/handlers"
	v1 "github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/routes/v1"
)

// Provider coordinates all route registrations.
type Provider struct {
	V1 *v1.Routes
}

// NewProvider constructs the route provider.
func NewProvider(handlerProvider *handlers.Provider) *Provider {
	return &Provider{
		V1: v1.NewRoutes(handlerProvider),
	}
}

// Register attaches all available routes to the router.
func (p *Provider) Register(router gin.IRouter) {
	p.V1.Register(router)
}
