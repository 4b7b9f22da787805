// Package providertest provides a scripted in-memory provider.Client.
package providertest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
)

// Response scripts the outcome of one CreateStreamingRun call.
type Response struct {
	// CreateErr fails the call itself.
	CreateErr error
	// Events are delivered in order, followed by RecvErr or io.EOF.
	Events  []provider.Event
	RecvErr error
}

// Reply returns a response streaming text in two deltas and completing.
func Reply(text string) Response {
	half := len(text) / 2
	return Response{Events: []provider.Event{
		{Type: provider.EventDelta, Text: text[:half]},
		{Type: provider.EventDelta, Text: text[half:]},
		{Type: provider.EventCompleted},
	}}
}

// Fail returns a response that streams partial text then reports a failed run.
func Fail(partial, code, message string) Response {
	events := []provider.Event{}
	if partial != "" {
		events = append(events, provider.Event{Type: provider.EventDelta, Text: partial})
	}
	events = append(events, provider.Event{Type: provider.EventFailed, Code: code, Message: message})
	return Response{Events: events}
}

// Client is a fake provider. Responder decides each run's output; by default
// every run replies "<assistant_id> #<n>" where n counts runs per assistant.
type Client struct {
	Responder func(req provider.StreamRunRequest, n int) Response
	// StuckCancelling leaves cancelled runs in the cancelling state.
	StuckCancelling bool

	mu          sync.Mutex
	threadSeq   int
	runSeq      int
	perAgent    map[string]int
	threads     map[string][]provider.ThreadMessage
	runs        map[string][]provider.Run
	cancelCalls []string
	createCalls []provider.StreamRunRequest
	listCalls   int
}

// New returns an empty fake provider.
func New() *Client {
	return &Client{
		perAgent: make(map[string]int),
		threads:  make(map[string][]provider.ThreadMessage),
		runs:     make(map[string][]provider.Run),
	}
}

// AddRun registers a run on a thread, e.g. one left over from a crashed chain.
func (c *Client) AddRun(threadID string, s provider.RunStatus) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runSeq++
	id := fmt.Sprintf("run_%d", c.runSeq)
	c.runs[threadID] = append(c.runs[threadID], provider.Run{ID: id, ThreadID: threadID, Status: s})
	return id
}

// CancelCalls returns the run IDs passed to CancelRun.
func (c *Client) CancelCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelCalls...)
}

// CreateCalls returns every CreateStreamingRun request, including failed ones.
func (c *Client) CreateCalls() []provider.StreamRunRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provider.StreamRunRequest(nil), c.createCalls...)
}

// ListCalls returns how many times ListRecentRuns was called.
func (c *Client) ListCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listCalls
}

// Thread returns the messages recorded on a thread.
func (c *Client) Thread(threadID string) ([]provider.ThreadMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.threads[threadID]
	return append([]provider.ThreadMessage(nil), msgs...), ok
}

// ThreadCount returns how many threads were created.
func (c *Client) ThreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadSeq
}

func (c *Client) CreateThread(ctx context.Context, messages []provider.ThreadMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threadSeq++
	id := fmt.Sprintf("thread_%d", c.threadSeq)
	c.threads[id] = append([]provider.ThreadMessage{}, messages...)
	return id, nil
}

func (c *Client) ListRecentRuns(ctx context.Context, threadID string) ([]provider.Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	return append([]provider.Run(nil), c.runs[threadID]...), nil
}

func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelCalls = append(c.cancelCalls, runID)
	for i, r := range c.runs[threadID] {
		if r.ID != runID {
			continue
		}
		if c.StuckCancelling {
			c.runs[threadID][i].Status = provider.RunStatusCancelling
		} else {
			c.runs[threadID][i].Status = provider.RunStatusCancelled
		}
		return nil
	}
	return fmt.Errorf("run %s not found on %s", runID, threadID)
}

func (c *Client) CreateStreamingRun(ctx context.Context, req provider.StreamRunRequest) (provider.Stream, error) {
	c.mu.Lock()
	c.createCalls = append(c.createCalls, req)
	c.perAgent[req.AssistantID]++
	n := c.perAgent[req.AssistantID]
	responder := c.Responder
	c.mu.Unlock()

	var resp Response
	if responder != nil {
		resp = responder(req, n)
	} else {
		resp = Reply(fmt.Sprintf("%s #%d", req.AssistantID, n))
	}
	if resp.CreateErr != nil {
		return nil, resp.CreateErr
	}

	c.mu.Lock()
	c.runSeq++
	runID := fmt.Sprintf("run_%d", c.runSeq)
	c.runs[req.ThreadID] = append(c.runs[req.ThreadID], provider.Run{ID: runID, ThreadID: req.ThreadID, Status: provider.RunStatusCompleted})
	if req.Input != "" {
		c.threads[req.ThreadID] = append(c.threads[req.ThreadID], provider.ThreadMessage{Role: provider.MessageRoleUser, Content: req.Input})
	}
	var text string
	for _, ev := range resp.Events {
		if ev.Type == provider.EventDelta {
			text += ev.Text
		}
	}
	c.threads[req.ThreadID] = append(c.threads[req.ThreadID], provider.ThreadMessage{Role: provider.MessageRoleAssistant, Content: text})
	c.mu.Unlock()

	return &stream{events: resp.Events, recvErr: resp.RecvErr}, nil
}

type stream struct {
	events  []provider.Event
	recvErr error
	closed  bool
}

func (s *stream) Recv() (provider.Event, error) {
	if len(s.events) == 0 {
		if s.recvErr != nil {
			return provider.Event{}, s.recvErr
		}
		return provider.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}

var _ provider.Client = (*Client)(nil)
