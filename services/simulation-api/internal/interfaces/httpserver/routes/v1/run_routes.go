package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/handlers"
)

func registerRunRoutes(router gin.IRoutes, handler *handlers.RunHandler) {
	router.POST("/runs", handler.Create)
	router.GET("/runs", handler.List)
	router.GET("/runs/:run_id", handler.Get)
	router.GET("/runs/:run_id/events", handler.Events)

	// Per persona conversation
	router.GET("/runs/:run_id/personas/:persona_id/conversation", handler.GetConversation)
	router.POST("/runs/:run_id/personas/:persona_id/turns/:turn_index/edit", handler.EditTurn)
	router.POST("/runs/:run_id/personas/:persona_id/regenerate", handler.Regenerate)
}
