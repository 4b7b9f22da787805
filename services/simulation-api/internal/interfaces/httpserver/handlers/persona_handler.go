package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/auth"
	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/dto"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/platformerrors"
)

// PersonaService is the persona catalogue used by the handler.
type PersonaService interface {
	Create(ctx context.Context, params persona.CreateParams) (*persona.Persona, error)
	Get(ctx context.Context, ownerID, publicID string) (*persona.Persona, error)
	List(ctx context.Context, ownerID string) ([]*persona.Persona, error)
}

// PersonaHandler exposes the persona catalogue.
type PersonaHandler struct {
	service PersonaService
	log     zerolog.Logger
}

// NewPersonaHandler constructs the handler.
func NewPersonaHandler(service PersonaService, log zerolog.Logger) *PersonaHandler {
	return &PersonaHandler{
		service: service,
		log:     log.With().Str("handler", "persona").Logger(),
	}
}

// Create handles POST /v1/personas
// @Summary Create a persona
// @Tags Personas
// @Accept json
// @Produce json
// @Param request body dto.CreatePersonaRequest true "Persona"
// @Success 201 {object} dto.PersonaResponse
// @Failure 400 {object} platformerrors.HTTPErrorResponse
// @Router /v1/personas [post]
func (h *PersonaHandler) Create(c *gin.Context) {
	var req dto.CreatePersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, "invalid request body: "+err.Error())
		return
	}

	p, err := h.service.Create(c.Request.Context(), req.ToParams(auth.OwnerID(c)))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusCreated, dto.FromPersona(p))
}

// Get handles GET /v1/personas/:persona_id
// @Summary Get a persona
// @Tags Personas
// @Produce json
// @Param persona_id path string true "Persona ID"
// @Success 200 {object} dto.PersonaResponse
// @Failure 404 {object} platformerrors.HTTPErrorResponse
// @Router /v1/personas/{persona_id} [get]
func (h *PersonaHandler) Get(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), auth.OwnerID(c), c.Param("persona_id"))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.FromPersona(p))
}

// List handles GET /v1/personas
// @Summary List personas visible to the caller
// @Tags Personas
// @Produce json
// @Success 200 {object} dto.ListResponse[dto.PersonaResponse]
// @Router /v1/personas [get]
func (h *PersonaHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.FromPersonas(items))
}
