package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	providerErrors "github.com/janhq/persona-sim/services/simulation-api/internal/domain/errors"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"})
}

func sse(events ...[2]string) string {
	var b strings.Builder
	for _, ev := range events {
		if ev[0] != "" {
			fmt.Fprintf(&b, "event: %s\n", ev[0])
		}
		fmt.Fprintf(&b, "data: %s\n\n", ev[1])
	}
	return b.String()
}

func deltaJSON(text string) string {
	raw, _ := json.Marshal(map[string]any{
		"object": "thread.message.delta",
		"delta": map[string]any{
			"content": []map[string]any{{"index": 0, "type": "text", "text": map[string]any{"value": text}}},
		},
	})
	return string(raw)
}

func collect(t *testing.T, s provider.Stream) ([]provider.Event, error) {
	t.Helper()
	var events []provider.Event
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestCreateThread_SendsHistory(t *testing.T) {
	var got struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"thread_abc","object":"thread","created_at":1}`)
	})
	c := newTestClient(t, mux)

	id, err := c.CreateThread(context.Background(), []provider.ThreadMessage{
		{Role: provider.MessageRoleAssistant, Content: "What is a cell?"},
		{Role: provider.MessageRoleUser, Content: "The basic unit of life."},
	})
	require.NoError(t, err)
	assert.Equal(t, "thread_abc", id)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "assistant", got.Messages[0].Role)
	assert.Equal(t, "The basic unit of life.", got.Messages[1].Content)
}

func TestListRecentRunsAndCancel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "thread_1", r.PathValue("thread"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		_, _ = io.WriteString(w, `{"object":"list","data":[
			{"id":"run_2","object":"thread.run","thread_id":"thread_1","status":"in_progress"},
			{"id":"run_1","object":"thread.run","thread_id":"thread_1","status":"completed"}
		],"has_more":false}`)
	})
	var cancelled string
	mux.HandleFunc("POST /v1/threads/{thread}/runs/{run}/cancel", func(w http.ResponseWriter, r *http.Request) {
		cancelled = r.PathValue("run")
		_, _ = io.WriteString(w, `{"id":"run_2","object":"thread.run","thread_id":"thread_1","status":"cancelling"}`)
	})
	c := newTestClient(t, mux)

	runs, err := c.ListRecentRuns(context.Background(), "thread_1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, provider.Run{ID: "run_2", ThreadID: "thread_1", Status: provider.RunStatusInProgress}, runs[0])
	assert.True(t, runs[0].Status.Cancellable())
	assert.False(t, runs[1].Status.Active())

	require.NoError(t, c.CancelRun(context.Background(), "thread_1", "run_2"))
	assert.Equal(t, "run_2", cancelled)
}

func TestCancelRun_MapsAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads/{thread}/runs/{run}/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"message":"No run found","type":"invalid_request_error","code":null}}`)
	})
	c := newTestClient(t, mux)

	err := c.CancelRun(context.Background(), "thread_1", "run_x")
	var pe *providerErrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
	assert.False(t, pe.IsRetryable())
}

func TestCreateStreamingRun_StreamsDeltas(t *testing.T) {
	var body createRunBody
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "thread_9", r.PathValue("thread"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sse(
			[2]string{"thread.run.created", `{"id":"run_7","object":"thread.run","status":"queued"}`},
			[2]string{"thread.message.created", `{"id":"msg_1"}`},
			[2]string{"thread.message.delta", deltaJSON("Cells are ")},
			[2]string{"thread.message.delta", deltaJSON("small【4:0†notes.pdf】.")},
			[2]string{"thread.run.completed", `{"id":"run_7","object":"thread.run","status":"completed"}`},
			[2]string{"done", "[DONE]"},
		))
	})
	c := newTestClient(t, mux)

	stream, err := c.CreateStreamingRun(context.Background(), provider.StreamRunRequest{
		ThreadID:     "thread_9",
		AssistantID:  "asst_tutor",
		Input:        "What is a cell?",
		Instructions: "Be brief.",
		FileIDs:      []string{"file_1"},
	})
	require.NoError(t, err)
	defer stream.Close()

	events, err := collect(t, stream)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, provider.Event{Type: provider.EventDelta, Text: "Cells are ", RunID: "run_7"}, events[0])
	assert.Equal(t, "small【4:0†notes.pdf】.", events[1].Text)
	assert.Equal(t, provider.EventCompleted, events[2].Type)

	assert.Equal(t, "asst_tutor", body.AssistantID)
	assert.True(t, body.Stream)
	assert.Equal(t, "Be brief.", body.AdditionalInstructions)
	require.Len(t, body.AdditionalMessages, 1)
	assert.Equal(t, "user", body.AdditionalMessages[0].Role)
	assert.Equal(t, "What is a cell?", body.AdditionalMessages[0].Content)
	require.Len(t, body.AdditionalMessages[0].Attachments, 1)
	assert.Equal(t, "file_1", body.AdditionalMessages[0].Attachments[0].FileID)
	assert.Equal(t, "file_search", body.AdditionalMessages[0].Attachments[0].Tools[0].Type)
}

func TestCreateStreamingRun_EmptyInputAddsNoMessage(t *testing.T) {
	var raw map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, sse([2]string{"thread.run.completed", `{"id":"run_1"}`}))
	})
	c := newTestClient(t, mux)

	stream, err := c.CreateStreamingRun(context.Background(), provider.StreamRunRequest{ThreadID: "thread_1", AssistantID: "asst_persona"})
	require.NoError(t, err)
	defer stream.Close()

	_, err = collect(t, stream)
	require.NoError(t, err)
	assert.NotContains(t, raw, "additional_messages")
}

func TestCreateStreamingRun_RunFailedMidStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sse(
			[2]string{"thread.run.created", `{"id":"run_3"}`},
			[2]string{"thread.message.delta", deltaJSON("partial")},
			[2]string{"thread.run.failed", `{"id":"run_3","status":"failed","last_error":{"code":"server_error","message":"The server had an error"}}`},
		))
	})
	c := newTestClient(t, mux)

	stream, err := c.CreateStreamingRun(context.Background(), provider.StreamRunRequest{ThreadID: "thread_1", AssistantID: "asst"})
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, provider.Event{Type: provider.EventFailed, RunID: "run_3", Code: "server_error", Message: "The server had an error"}, events[1])
}

func TestCreateStreamingRun_TruncatedBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sse([2]string{"thread.message.delta", deltaJSON("half an ans")}))
	})
	c := newTestClient(t, mux)

	stream, err := c.CreateStreamingRun(context.Background(), provider.StreamRunRequest{ThreadID: "thread_1", AssistantID: "asst"})
	require.NoError(t, err)
	events, err := collect(t, stream)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Len(t, events, 1)
}

func TestCreateStreamingRun_HTTPErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		code      string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`, "rate_limit_exceeded", true},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"oops","type":"server_error","code":null}}`, "server_error", true},
		{"active run", http.StatusBadRequest, `{"error":{"message":"Thread thread_1 already has an active run run_2.","type":"invalid_request_error","code":null}}`, providerErrors.ErrCodeActiveRun, true},
		{"bad assistant", http.StatusNotFound, `{"error":{"message":"No assistant found","type":"invalid_request_error","code":null}}`, "invalid_request_error", false},
		{"no body", http.StatusBadGateway, ``, providerErrors.ErrCodeServerError, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /v1/threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			c := newTestClient(t, mux)

			_, err := c.CreateStreamingRun(context.Background(), provider.StreamRunRequest{ThreadID: "thread_1", AssistantID: "asst"})
			var pe *providerErrors.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.code, pe.Code)
			assert.Equal(t, tc.status, pe.StatusCode)
			assert.Equal(t, tc.retryable, pe.IsRetryable())
		})
	}
}

func TestCreateStreamingRun_CancelledContext(t *testing.T) {
	mux := http.NewServeMux()
	c := newTestClient(t, mux)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CreateStreamingRun(ctx, provider.StreamRunRequest{ThreadID: "thread_1", AssistantID: "asst"})
	assert.ErrorIs(t, err, context.Canceled)
}
