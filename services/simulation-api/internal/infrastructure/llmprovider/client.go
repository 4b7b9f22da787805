package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	openai "github.com/sashabaranov/go-openai"

	providerErrors "github.com/janhq/persona-sim/services/simulation-api/internal/domain/errors"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/status"
)

const (
	recentRunsLimit = 20
	assistantsBeta  = "assistants=v2"
)

// Config points the client at an Assistants compatible API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements provider.Client. Thread and run bookkeeping goes through
// go-openai; streaming runs are read as raw SSE through Resty.
type Client struct {
	api  *openai.Client
	http *resty.Client
}

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = baseURL
	apiCfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}

	return &Client{
		api: openai.NewClientWithConfig(apiCfg),
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(cfg.APIKey).
			SetHeader("Content-Type", "application/json").
			SetHeader("OpenAI-Beta", assistantsBeta).
			SetTimeout(cfg.Timeout),
	}
}

// CreateThread creates a thread holding messages in order.
func (c *Client) CreateThread(ctx context.Context, messages []provider.ThreadMessage) (string, error) {
	req := openai.ThreadRequest{}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ThreadMessage{
			Role:    openai.ThreadMessageRole(m.Role),
			Content: m.Content,
		})
	}
	thread, err := c.api.CreateThread(ctx, req)
	if err != nil {
		return "", mapAPIError(ctx, err)
	}
	return thread.ID, nil
}

// ListRecentRuns returns the newest runs of a thread.
func (c *Client) ListRecentRuns(ctx context.Context, threadID string) ([]provider.Run, error) {
	limit := recentRunsLimit
	order := "desc"
	list, err := c.api.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit, Order: &order})
	if err != nil {
		return nil, mapAPIError(ctx, err)
	}
	runs := make([]provider.Run, 0, len(list.Runs))
	for _, r := range list.Runs {
		runs = append(runs, provider.Run{
			ID:       r.ID,
			ThreadID: r.ThreadID,
			Status:   provider.RunStatus(r.Status),
		})
	}
	return runs, nil
}

// CancelRun asks the provider to cancel a run.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := c.api.CancelRun(ctx, threadID, runID); err != nil {
		return mapAPIError(ctx, err)
	}
	return nil
}

type runAttachmentTool struct {
	Type string `json:"type"`
}

type runAttachment struct {
	FileID string              `json:"file_id"`
	Tools  []runAttachmentTool `json:"tools"`
}

type runMessage struct {
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Attachments []runAttachment `json:"attachments,omitempty"`
}

type createRunBody struct {
	AssistantID            string       `json:"assistant_id"`
	Stream                 bool         `json:"stream"`
	AdditionalInstructions string       `json:"additional_instructions,omitempty"`
	AdditionalMessages     []runMessage `json:"additional_messages,omitempty"`
}

// CreateStreamingRun appends Input as a user message, starts a run and
// returns its event stream. Files ride along as file_search attachments.
func (c *Client) CreateStreamingRun(ctx context.Context, req provider.StreamRunRequest) (provider.Stream, error) {
	body := createRunBody{
		AssistantID:            req.AssistantID,
		Stream:                 true,
		AdditionalInstructions: req.Instructions,
	}
	if req.Input != "" {
		msg := runMessage{Role: string(provider.MessageRoleUser), Content: req.Input}
		for _, id := range req.FileIDs {
			msg.Attachments = append(msg.Attachments, runAttachment{
				FileID: id,
				Tools:  []runAttachmentTool{{Type: "file_search"}},
			})
		}
		body.AdditionalMessages = []runMessage{msg}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post("/threads/" + req.ThreadID + "/runs")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, providerErrors.NewProviderError(providerErrors.ErrCodeNetwork, err.Error(), status.ErrorSeverityRetryable).WithCause(err)
	}

	raw := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		defer raw.Close()
		return nil, decodeHTTPError(resp.StatusCode(), raw)
	}
	return newSSEStream(raw), nil
}

type apiErrorBody struct {
	Error struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func decodeHTTPError(statusCode int, body io.Reader) error {
	var parsed apiErrorBody
	_ = json.NewDecoder(body).Decode(&parsed)
	return classifyAPIError(statusCode, codeString(parsed.Error.Code, parsed.Error.Type), parsed.Error.Message)
}

func mapAPIError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr.HTTPStatusCode, codeString(apiErr.Code, apiErr.Type), apiErr.Message).WithCause(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyAPIError(reqErr.HTTPStatusCode, "", "").WithCause(err)
	}
	return providerErrors.NewProviderError(providerErrors.ErrCodeNetwork, err.Error(), status.ErrorSeverityRetryable).WithCause(err)
}

// classifyAPIError recognises the "already has an active run" 400, which the
// API reports without a code.
func classifyAPIError(statusCode int, code, message string) *providerErrors.ProviderError {
	if statusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "already has an active run") {
		code = providerErrors.ErrCodeActiveRun
	}
	return providerErrors.FromHTTPStatus(statusCode, code, message)
}

func codeString(code any, fallback string) string {
	switch v := code.(type) {
	case nil:
	case string:
		if v != "" {
			return v
		}
	default:
		return fmt.Sprint(v)
	}
	return fallback
}

var _ provider.Client = (*Client)(nil)
