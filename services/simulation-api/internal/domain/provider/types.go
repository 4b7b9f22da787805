// Package provider defines the contract with the hosted assistant API that
// owns threads and runs.
package provider

import (
	"context"
)

// RunStatus is the provider-reported state of a run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// Cancellable reports whether a cancel request applies to the run.
func (s RunStatus) Cancellable() bool {
	return s == RunStatusQueued || s == RunStatusInProgress || s == RunStatusRequiresAction
}

// Active reports whether the run still blocks a new run on its thread.
func (s RunStatus) Active() bool {
	return s.Cancellable() || s == RunStatusCancelling
}

// Run is a generation on a thread.
type Run struct {
	ID       string
	ThreadID string
	Status   RunStatus
}

// MessageRole is the role of a message inside a provider thread.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ThreadMessage seeds a thread with prior history.
type ThreadMessage struct {
	Role    MessageRole
	Content string
}

// StreamRunRequest starts a streaming run. An empty Input adds no message, so
// the assistant speaks from its instructions and the existing thread alone.
type StreamRunRequest struct {
	ThreadID     string
	AssistantID  string
	Input        string
	Instructions string
	FileIDs      []string
}

// EventType tags stream events.
type EventType string

const (
	EventDelta     EventType = "delta"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is one item of a run stream.
type Event struct {
	Type    EventType
	Text    string // delta
	RunID   string
	Code    string // failed
	Message string // failed
}

// Stream yields run events. Recv returns io.EOF after the final event.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Client talks to the provider. Implementations must be safe for concurrent use.
type Client interface {
	CreateThread(ctx context.Context, messages []ThreadMessage) (string, error)
	ListRecentRuns(ctx context.Context, threadID string) ([]Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	CreateStreamingRun(ctx context.Context, req StreamRunRequest) (Stream, error)
}
