package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/orchestrator"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/session"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/auth"
	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/dto"
	"github.com/janhq/persona-sim/services/simulation-api/internal/interfaces/httpserver/middlewares"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/platformerrors"
)

const (
	eventBuffer       = 256
	heartbeatInterval = 15 * time.Second
	defaultListLimit  = 20
	maxListLimit      = 100
)

// RunService runs simulations and exposes their conversations.
type RunService interface {
	CreateRun(ctx context.Context, params session.StartParams) (*session.RunSnapshot, error)
	GetRun(ctx context.Context, ownerID, runID string) (*session.RunSnapshot, error)
	ListRuns(ctx context.Context, ownerID string, limit int) ([]*testrun.TestRun, error)
	GetConversation(ctx context.Context, ownerID, runID, personaID string) (*session.ConversationSnapshot, error)
	EditTurn(ctx context.Context, ownerID, runID, personaID string, turnIndex int, content string) (*session.ConversationSnapshot, error)
	Regenerate(ctx context.Context, ownerID, runID, personaID string) (*session.ConversationSnapshot, error)
	Subscribe(ctx context.Context, ownerID, runID string, buffer int) (<-chan orchestrator.Event, func(), error)
}

// RunHandler exposes test runs and their persona conversations.
type RunHandler struct {
	service   RunService
	log       zerolog.Logger
	heartbeat time.Duration
}

// NewRunHandler constructs the handler.
func NewRunHandler(service RunService, log zerolog.Logger) *RunHandler {
	return &RunHandler{
		service:   service,
		log:       log.With().Str("handler", "run").Logger(),
		heartbeat: heartbeatInterval,
	}
}

// Create handles POST /v1/runs
// @Summary Start a test run
// @Description Starts one conversation per persona against the assistant under test
// @Tags Runs
// @Accept json
// @Produce json
// @Param request body dto.CreateRunRequest true "Run"
// @Success 201 {object} dto.RunResponse
// @Failure 400 {object} platformerrors.HTTPErrorResponse
// @Failure 404 {object} platformerrors.HTTPErrorResponse
// @Router /v1/runs [post]
func (h *RunHandler) Create(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.service.CreateRun(c.Request.Context(), req.ToParams(auth.OwnerID(c)))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusCreated, dto.FromRunSnapshot(snap))
}

// List handles GET /v1/runs
// @Summary List test runs
// @Tags Runs
// @Produce json
// @Param limit query int false "Page size"
// @Success 200 {object} dto.ListResponse[dto.RunResponse]
// @Router /v1/runs [get]
func (h *RunHandler) List(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			platformerrors.WriteValidationError(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := h.service.ListRuns(c.Request.Context(), auth.OwnerID(c), limit)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.FromRuns(runs))
}

// Get handles GET /v1/runs/:run_id
// @Summary Get a test run with all conversations
// @Tags Runs
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} dto.RunResponse
// @Failure 404 {object} platformerrors.HTTPErrorResponse
// @Router /v1/runs/{run_id} [get]
func (h *RunHandler) Get(c *gin.Context) {
	snap, err := h.service.GetRun(c.Request.Context(), auth.OwnerID(c), c.Param("run_id"))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.FromRunSnapshot(snap))
}

// GetConversation handles GET /v1/runs/:run_id/personas/:persona_id/conversation
// @Summary Get one persona conversation
// @Tags Runs
// @Produce json
// @Param run_id path string true "Run ID"
// @Param persona_id path string true "Persona ID"
// @Success 200 {object} dto.ConversationResponse
// @Failure 404 {object} platformerrors.HTTPErrorResponse
// @Router /v1/runs/{run_id}/personas/{persona_id}/conversation [get]
func (h *RunHandler) GetConversation(c *gin.Context) {
	snap, err := h.service.GetConversation(c.Request.Context(), auth.OwnerID(c), c.Param("run_id"), c.Param("persona_id"))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(snap))
}

// EditTurn handles POST /v1/runs/:run_id/personas/:persona_id/turns/:turn_index/edit
// @Summary Edit a persona turn and resume the conversation
// @Description Replaces the persona turn, drops everything after it and restarts the chain from the edited message
// @Tags Runs
// @Accept json
// @Produce json
// @Param run_id path string true "Run ID"
// @Param persona_id path string true "Persona ID"
// @Param turn_index path int true "Turn index in the merged conversation"
// @Param request body dto.EditTurnRequest true "New content"
// @Success 202 {object} dto.ConversationResponse
// @Failure 400 {object} platformerrors.HTTPErrorResponse
// @Failure 404 {object} platformerrors.HTTPErrorResponse
// @Failure 409 {object} platformerrors.HTTPErrorResponse
// @Router /v1/runs/{run_id}/personas/{persona_id}/turns/{turn_index}/edit [post]
func (h *RunHandler) EditTurn(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("turn_index"))
	if err != nil {
		platformerrors.WriteValidationError(c, "turn_index must be an integer")
		return
	}
	var req dto.EditTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.service.EditTurn(c.Request.Context(), auth.OwnerID(c), c.Param("run_id"), c.Param("persona_id"), idx, req.Content)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusAccepted, dto.FromConversation(snap))
}

// Regenerate handles POST /v1/runs/:run_id/personas/:persona_id/regenerate
// @Summary Regenerate a persona conversation from scratch
// @Tags Runs
// @Produce json
// @Param run_id path string true "Run ID"
// @Param persona_id path string true "Persona ID"
// @Success 202 {object} dto.ConversationResponse
// @Failure 404 {object} platformerrors.HTTPErrorResponse
// @Failure 409 {object} platformerrors.HTTPErrorResponse
// @Router /v1/runs/{run_id}/personas/{persona_id}/regenerate [post]
func (h *RunHandler) Regenerate(c *gin.Context) {
	snap, err := h.service.Regenerate(c.Request.Context(), auth.OwnerID(c), c.Param("run_id"), c.Param("persona_id"))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	c.JSON(http.StatusAccepted, dto.FromConversation(snap))
}

// Events handles GET /v1/runs/:run_id/events
// @Summary Stream run progress
// @Description Sends a run.snapshot event, then chain events as they happen. The stream ends with run.done once every chain that was running has finished.
// @Tags Runs
// @Produce text/event-stream
// @Param run_id path string true "Run ID"
// @Router /v1/runs/{run_id}/events [get]
func (h *RunHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID, runID := auth.OwnerID(c), c.Param("run_id")

	// Subscribe before taking the snapshot so no event falls in between.
	events, unsubscribe, err := h.service.Subscribe(ctx, ownerID, runID, eventBuffer)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	defer unsubscribe()

	snap, err := h.service.GetRun(ctx, ownerID, runID)
	if err != nil {
		writeError(c, err, h.log)
		return
	}

	flusher, ok := middlewares.PrepareSSE(c)
	if !ok {
		platformerrors.WriteError(c, errStreamingUnsupported, h.log)
		return
	}
	c.Status(http.StatusOK)

	pending := make(map[string]struct{})
	for _, conv := range snap.Conversations {
		if conv.Running {
			pending[conv.Persona.PublicID] = struct{}{}
		}
	}

	send := func(name string, payload any) {
		c.SSEvent(name, payload)
		flusher.Flush()
	}
	send("run.snapshot", dto.FromRunSnapshot(snap))
	if len(pending) == 0 {
		send("run.done", gin.H{"id": runID})
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = io.WriteString(c.Writer, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			send(string(ev.Type), ev)
			if ev.Type != orchestrator.EventChainFinished {
				continue
			}
			delete(pending, ev.PersonaID)
			if len(pending) == 0 {
				send("run.done", gin.H{"id": runID})
				return
			}
		}
	}
}
