// Package status holds the lifecycle of a test run and of each persona's
// conversation inside it.
package status

import "errors"

type Status string

const (
	StatusPending    Status = "pending"     // chain not started
	StatusInProgress Status = "in_progress" // turns being generated
	StatusCompleted  Status = "completed"   // turn budget reached
	StatusFailed     Status = "failed"      // run creation gave up
	StatusCancelled  Status = "cancelled"   // process stopped mid-chain
)

var ErrInvalidTransition = errors.New("invalid status transition")

// IsTerminal reports whether no chain is scheduled or running. Terminal
// conversations are reopened only by edit or regenerate.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) allows(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusInProgress || target == StatusFailed || target == StatusCancelled
	case StatusInProgress:
		return target.IsTerminal()
	case StatusCompleted, StatusFailed, StatusCancelled:
		return target == StatusInProgress
	}
	return false
}

// TransitionTo returns target, or s and ErrInvalidTransition when the move is
// not allowed.
func (s Status) TransitionTo(target Status) (Status, error) {
	if !s.allows(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}

// Aggregate folds a run's conversation statuses into the run status. Any
// unfinished conversation keeps the run in progress; otherwise failed beats
// cancelled beats completed.
func Aggregate(statuses []Status) Status {
	if len(statuses) == 0 {
		return StatusPending
	}
	result := StatusCompleted
	for _, s := range statuses {
		switch s {
		case StatusPending, StatusInProgress:
			return StatusInProgress
		case StatusFailed:
			result = StatusFailed
		case StatusCancelled:
			if result != StatusFailed {
				result = StatusCancelled
			}
		}
	}
	return result
}

// ErrorSeverity says whether a provider error is worth retrying.
type ErrorSeverity string

const (
	ErrorSeverityRetryable ErrorSeverity = "retryable"
	ErrorSeverityFatal     ErrorSeverity = "fatal"
)

func (e ErrorSeverity) IsRetryable() bool { return e == ErrorSeverityRetryable }
func (e ErrorSeverity) IsFatal() bool     { return e == ErrorSeverityFatal }
