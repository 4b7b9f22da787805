package conversation

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RolePersona   Role = "persona"
	RoleAssistant Role = "assistant"
)

// Other returns the role that speaks next.
func (r Role) Other() Role {
	if r == RolePersona {
		return RoleAssistant
	}
	return RolePersona
}

// Log names one of the two message logs backing a conversation.
type Log string

const (
	LogPersona   Log = "persona"
	LogAssistant Log = "assistant"
)

// LogFor returns the log a role's turns are written to.
func LogFor(role Role) Log {
	if role == RolePersona {
		return LogPersona
	}
	return LogAssistant
}

// Ref addresses one log of one conversation.
type Ref struct {
	ConversationID string
	Log            Log
}

// ErrorPrefix starts the content of every synthetic error turn.
const ErrorPrefix = "[error]"

// Turn is a single message in a conversation.
type Turn struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	IsLoading bool      `json:"is_loading,omitempty"`
	IsError   bool      `json:"is_error,omitempty"`
}

// ErrorContent formats the content of a synthetic error turn.
func ErrorContent(code, message string) string {
	var b strings.Builder
	b.WriteString(ErrorPrefix)
	if code != "" {
		b.WriteString(" ")
		b.WriteString(code)
		b.WriteString(":")
	}
	if message != "" {
		b.WriteString(" ")
		b.WriteString(message)
	}
	return b.String()
}

// MessageStore persists the turns of each conversation log. Committed turns in
// one conversation carry strictly increasing CreatedAt values assigned by the
// store.
type MessageStore interface {
	Append(ctx context.Context, ref Ref, role Role, content string, isError bool) (Turn, error)
	// DeleteFrom removes every turn in the log with CreatedAt >= cutoff.
	DeleteFrom(ctx context.Context, ref Ref, cutoff time.Time) (int64, error)
	DeleteAll(ctx context.Context, ref Ref) (int64, error)
	List(ctx context.Context, ref Ref) ([]Turn, error)
}

// NextTimestamp returns the creation time for a new turn given the latest one
// already committed. Postgres keeps microseconds, so the result is truncated
// and bumped past last when the clock has not advanced.
func NextTimestamp(last, now time.Time) time.Time {
	t := now.UTC().Truncate(time.Microsecond)
	if !t.After(last) {
		t = last.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return t
}

// Merge interleaves the persona and assistant logs by CreatedAt. Persona turns
// win ties.
func Merge(persona, assistant []Turn) []Turn {
	merged := make([]Turn, 0, len(persona)+len(assistant))
	merged = append(merged, persona...)
	merged = append(merged, assistant...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}

// Load reads both logs of a conversation and returns the merged turns.
func Load(ctx context.Context, store MessageStore, conversationID string) ([]Turn, error) {
	persona, err := store.List(ctx, Ref{ConversationID: conversationID, Log: LogPersona})
	if err != nil {
		return nil, err
	}
	assistant, err := store.List(ctx, Ref{ConversationID: conversationID, Log: LogAssistant})
	if err != nil {
		return nil, err
	}
	return Merge(persona, assistant), nil
}
