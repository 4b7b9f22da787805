package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/handlers"
)

func registerPersonaRoutes(router gin.IRoutes, handler *handlers.PersonaHandler) {
	router.POST("/personas", handler.Create)
	router.GET("/personas", handler.List)
	router.GET("/personas/:persona_id", handler.Get)
}
