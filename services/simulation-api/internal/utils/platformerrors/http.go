package platformerrors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HTTPErrorResponse is the body of every error response.
type HTTPErrorResponse struct {
	Error *HTTPErrorDetail `json:"error"`
}

type HTTPErrorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes err as an HTTP response. Errors without a PlatformError in
// their chain become a 500 whose cause is logged, not returned.
func WriteError(c *gin.Context, err error, log zerolog.Logger) {
	platformErr := GetPlatformError(err)
	if platformErr == nil {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("unhandled error")
		writeDetail(c, http.StatusInternalServerError, "internal server error", "internal_error", "")
		return
	}

	status := httpStatus(platformErr.Type)
	if status >= http.StatusInternalServerError {
		logError(log, platformErr)
	}
	c.AbortWithStatusJSON(status, HTTPErrorResponse{
		Error: &HTTPErrorDetail{
			Message:   platformErr.Message,
			Type:      responseType(platformErr.Type),
			Code:      platformErr.Code,
			RequestID: platformErr.RequestID,
		},
	})
}

func WriteNotFound(c *gin.Context, message string) {
	writeDetail(c, http.StatusNotFound, message, "not_found_error", "")
}

func WriteValidationError(c *gin.Context, message string) {
	writeDetail(c, http.StatusBadRequest, message, "validation_error", "")
}

func WriteConflict(c *gin.Context, message, code string) {
	writeDetail(c, http.StatusConflict, message, "conflict_error", code)
}

func writeDetail(c *gin.Context, status int, message, errType, code string) {
	c.AbortWithStatusJSON(status, HTTPErrorResponse{
		Error: &HTTPErrorDetail{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: RequestIDFromContext(c.Request.Context()),
		},
	})
}

func responseType(t ErrorType) string {
	switch t {
	case ErrorTypeNotFound:
		return "not_found_error"
	case ErrorTypeValidation:
		return "validation_error"
	case ErrorTypeConflict:
		return "conflict_error"
	default:
		return "internal_error"
	}
}
