// Package errors defines provider error types and their retry classification.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/status"
)

// ProviderError is an error reported by the LLM provider, either as an HTTP
// failure or as a failed run.
type ProviderError struct {
	Code       string               `json:"code"`
	Message    string               `json:"message"`
	Severity   status.ErrorSeverity `json:"severity"`
	StatusCode int                  `json:"status_code,omitempty"`
	Cause      error                `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error can be retried.
func (e *ProviderError) IsRetryable() bool {
	return e.Severity.IsRetryable()
}

// NewProviderError creates a provider error with an explicit severity.
func NewProviderError(code, message string, severity status.ErrorSeverity) *ProviderError {
	return &ProviderError{Code: code, Message: message, Severity: severity}
}

// WithCause adds an underlying cause to the error.
func (e *ProviderError) WithCause(cause error) *ProviderError {
	e.Cause = cause
	return e
}

// Common error codes.
const (
	ErrCodeRateLimit      = "rate_limit_exceeded"
	ErrCodeServerError    = "server_error"
	ErrCodeServiceUnavail = "service_unavailable"
	ErrCodeNetwork        = "network_error"
	ErrCodeStream         = "stream_error"
	ErrCodeInvalidRequest = "invalid_request_error"
	ErrCodeAuthFailed     = "authentication_error"
	ErrCodeNotFound       = "not_found"
	ErrCodeActiveRun      = "thread_has_active_run"
)

// FromHTTPStatus builds a provider error from a non-2xx response. 429, 5xx and
// 400 responses that report a still-active run are retryable; other 4xx are fatal.
func FromHTTPStatus(statusCode int, code, message string) *ProviderError {
	severity := status.ErrorSeverityFatal
	switch {
	case statusCode == http.StatusTooManyRequests:
		if code == "" {
			code = ErrCodeRateLimit
		}
		severity = status.ErrorSeverityRetryable
	case statusCode >= 500:
		if code == "" {
			code = ErrCodeServerError
		}
		severity = status.ErrorSeverityRetryable
	case statusCode == http.StatusBadRequest && code == ErrCodeActiveRun:
		severity = status.ErrorSeverityRetryable
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		if code == "" {
			code = ErrCodeAuthFailed
		}
	case statusCode == http.StatusNotFound:
		if code == "" {
			code = ErrCodeNotFound
		}
	default:
		if code == "" {
			code = ErrCodeInvalidRequest
		}
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &ProviderError{Code: code, Message: message, Severity: severity, StatusCode: statusCode}
}

// Classifier classifies errors into severity levels.
type Classifier struct {
	rules []ClassificationRule
}

// ClassificationRule defines a rule for classifying errors.
type ClassificationRule struct {
	Match    func(error) bool
	Severity status.ErrorSeverity
}

// NewClassifier creates a new error classifier with default rules.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.addDefaultRules()
	return c
}

func (c *Classifier) addDefaultRules() {
	// Cancellation ends the chain
	c.rules = append(c.rules, ClassificationRule{
		Match: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		Severity: status.ErrorSeverityFatal,
	})

	// Dial failures, resets and client-side timeouts are transient
	c.rules = append(c.rules, ClassificationRule{
		Match: func(err error) bool {
			var netErr net.Error
			return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
		},
		Severity: status.ErrorSeverityRetryable,
	})
}

// AddRule adds a classification rule.
func (c *Classifier) AddRule(rule ClassificationRule) {
	c.rules = append(c.rules, rule)
}

// Classify determines the severity of an error.
func (c *Classifier) Classify(err error) status.ErrorSeverity {
	if err == nil {
		return ""
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Severity
	}

	for _, rule := range c.rules {
		if rule.Match(err) {
			return rule.Severity
		}
	}

	return status.ErrorSeverityRetryable
}
