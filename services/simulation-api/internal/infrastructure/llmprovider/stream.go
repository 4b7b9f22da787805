package llmprovider

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	providerErrors "github.com/janhq/persona-sim/services/simulation-api/internal/domain/errors"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
)

// Assistants stream event names.
const (
	eventRunCreated      = "thread.run.created"
	eventMessageDelta    = "thread.message.delta"
	eventRunCompleted    = "thread.run.completed"
	eventRunFailed       = "thread.run.failed"
	eventRunIncomplete   = "thread.run.incomplete"
	eventRunExpired      = "thread.run.expired"
	eventRunCancelled    = "thread.run.cancelled"
	eventRunNeedsAction  = "thread.run.requires_action"
	eventError           = "error"
	eventDone            = "done"
	doneSentinel         = "[DONE]"
	maxSSELineBytes      = 1 << 20
	initialSSELineBuffer = 64 * 1024
)

type runPayload struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
}

type messageDeltaPayload struct {
	Delta struct {
		Content []struct {
			Type string `json:"type"`
			Text *struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"delta"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// sseStream turns an Assistants run stream into provider events.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	runID   string
	done    bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, initialSSELineBuffer), maxSSELineBytes)
	return &sseStream{body: body, scanner: scanner}
}

// Recv returns the next delta, completion or failure. A body that ends
// before a terminal event yields io.ErrUnexpectedEOF.
func (s *sseStream) Recv() (provider.Event, error) {
	for {
		if s.done {
			return provider.Event{}, io.EOF
		}
		name, data, err := s.next()
		if err != nil {
			return provider.Event{}, err
		}
		ev, ok, err := s.translate(name, data)
		if err != nil {
			return provider.Event{}, err
		}
		if ok {
			return ev, nil
		}
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// next reads one event block: "event:" and "data:" lines up to a blank line.
func (s *sseStream) next() (name, data string, err error) {
	var dataLines []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if name != "" || len(dataLines) > 0 {
				return name, strings.Join(dataLines, "\n"), nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", "", fmt.Errorf("read run stream: %w", err)
	}
	if name != "" || len(dataLines) > 0 {
		return name, strings.Join(dataLines, "\n"), nil
	}
	return "", "", io.ErrUnexpectedEOF
}

func (s *sseStream) translate(name, data string) (provider.Event, bool, error) {
	if data == doneSentinel || name == eventDone {
		s.done = true
		return provider.Event{}, false, nil
	}

	switch name {
	case eventRunCreated:
		var run runPayload
		if err := json.Unmarshal([]byte(data), &run); err == nil {
			s.runID = run.ID
		}
		return provider.Event{}, false, nil

	case eventMessageDelta:
		var delta messageDeltaPayload
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			return provider.Event{}, false, fmt.Errorf("decode message delta: %w", err)
		}
		var b strings.Builder
		for _, part := range delta.Delta.Content {
			if part.Type == "text" && part.Text != nil {
				b.WriteString(part.Text.Value)
			}
		}
		if b.Len() == 0 {
			return provider.Event{}, false, nil
		}
		return provider.Event{Type: provider.EventDelta, Text: b.String(), RunID: s.runID}, true, nil

	case eventRunCompleted:
		s.done = true
		return provider.Event{Type: provider.EventCompleted, RunID: s.runID}, true, nil

	case eventRunFailed, eventRunIncomplete, eventRunExpired, eventRunCancelled, eventRunNeedsAction:
		s.done = true
		return s.runFailure(name, data), true, nil

	case eventError:
		s.done = true
		var payload errorPayload
		_ = json.Unmarshal([]byte(data), &payload)
		code, message := payload.Code, payload.Message
		if payload.Error != nil {
			code, message = payload.Error.Code, payload.Error.Message
		}
		if code == "" {
			code = providerErrors.ErrCodeStream
		}
		return provider.Event{Type: provider.EventFailed, RunID: s.runID, Code: code, Message: message}, true, nil
	}
	return provider.Event{}, false, nil
}

func (s *sseStream) runFailure(name, data string) provider.Event {
	var run runPayload
	_ = json.Unmarshal([]byte(data), &run)
	if run.ID != "" {
		s.runID = run.ID
	}

	ev := provider.Event{Type: provider.EventFailed, RunID: s.runID, Code: strings.TrimPrefix(name, "thread.run.")}
	switch {
	case run.LastError != nil:
		ev.Code, ev.Message = run.LastError.Code, run.LastError.Message
	case run.IncompleteDetails != nil:
		ev.Message = run.IncompleteDetails.Reason
	case name == eventRunNeedsAction:
		ev.Message = "run requires tool outputs, which are not supported"
	default:
		ev.Message = "run ended with status " + ev.Code
	}
	return ev
}
