package errors_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	providerErrors "github.com/janhq/persona-sim/services/simulation-api/internal/domain/errors"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/status"
)

func TestProviderError_Error(t *testing.T) {
	err := providerErrors.NewProviderError("server_error", "overloaded", status.ErrorSeverityRetryable)

	expected := "server_error: overloaded"
	if got := err.Error(); got != expected {
		t.Errorf("ProviderError.Error() = %v, want %v", got, expected)
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := providerErrors.NewProviderError("network_error", "request failed", status.ErrorSeverityRetryable).WithCause(cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		code       string
		wantCode   string
		retryable  bool
	}{
		{"rate limit", http.StatusTooManyRequests, "", providerErrors.ErrCodeRateLimit, true},
		{"server error", http.StatusInternalServerError, "", providerErrors.ErrCodeServerError, true},
		{"bad gateway keeps provider code", http.StatusBadGateway, "upstream", "upstream", true},
		{"active run conflict", http.StatusBadRequest, providerErrors.ErrCodeActiveRun, providerErrors.ErrCodeActiveRun, true},
		{"bad request", http.StatusBadRequest, "", providerErrors.ErrCodeInvalidRequest, false},
		{"unauthorized", http.StatusUnauthorized, "", providerErrors.ErrCodeAuthFailed, false},
		{"not found", http.StatusNotFound, "", providerErrors.ErrCodeNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := providerErrors.FromHTTPStatus(tt.statusCode, tt.code, "")
			if err.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", err.Code, tt.wantCode)
			}
			if err.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", err.IsRetryable(), tt.retryable)
			}
			if err.Message == "" {
				t.Errorf("Message should default to the status text")
			}
		})
	}
}

func TestClassifier_Classify(t *testing.T) {
	classifier := providerErrors.NewClassifier()

	tests := []struct {
		name     string
		err      error
		expected status.ErrorSeverity
	}{
		{"nil error", nil, ""},
		{"wrapped fatal provider error", fmt.Errorf("create run: %w", providerErrors.FromHTTPStatus(400, "", "bad")), status.ErrorSeverityFatal},
		{"retryable provider error", providerErrors.FromHTTPStatus(503, "", ""), status.ErrorSeverityRetryable},
		{"context canceled", context.Canceled, status.ErrorSeverityFatal},
		{"deadline exceeded", context.DeadlineExceeded, status.ErrorSeverityRetryable},
		{"unknown error", errors.New("boom"), status.ErrorSeverityRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifier.Classify(tt.err); got != tt.expected {
				t.Errorf("Classify() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestClassifier_AddRule(t *testing.T) {
	sentinel := errors.New("quota")
	classifier := providerErrors.NewClassifier()
	classifier.AddRule(providerErrors.ClassificationRule{
		Match:    func(err error) bool { return errors.Is(err, sentinel) },
		Severity: status.ErrorSeverityFatal,
	})

	if got := classifier.Classify(sentinel); got != status.ErrorSeverityFatal {
		t.Errorf("Classify() = %v, want fatal", got)
	}
}
