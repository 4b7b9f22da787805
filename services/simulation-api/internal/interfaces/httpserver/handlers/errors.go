package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/session"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/platformerrors"
)

var validationErrors = []error{
	testrun.ErrTurnBudget,
	testrun.ErrAssistantRequired,
	testrun.ErrNoPersonas,
	testrun.ErrDuplicatePersona,
	persona.ErrNameRequired,
	persona.ErrPromptRequired,
	session.ErrEmptyContent,
	session.ErrTurnIndexOutOfRange,
	session.ErrNotPersonaTurn,
	session.ErrTurnNotPersisted,
}

var notFoundErrors = []error{
	persona.ErrUnknownPersona,
	session.ErrUnknownPersona,
	testrun.ErrRunNotFound,
}

// writeError maps domain sentinels onto HTTP statuses. Anything else goes
// through the platform error mapping.
func writeError(c *gin.Context, err error, log zerolog.Logger) {
	switch {
	case isAny(err, validationErrors):
		platformerrors.WriteValidationError(c, err.Error())
	case isAny(err, notFoundErrors):
		platformerrors.WriteNotFound(c, err.Error())
	case errors.Is(err, session.ErrChainActive):
		platformerrors.WriteConflict(c, err.Error(), "chain_active")
	default:
		platformerrors.WriteError(c, err, log)
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var errStreamingUnsupported = errors.New("streaming not supported")
