package pipeline

import (
	"errors"
	"fmt"
)

// State is a stage of one orchestrator run.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateRejected
	StateAttemptingRemote
	StateRemoteSucceeded
	StateRemoteFailed
	StateRunningFallback
	StateScoring
	StateRetrieving
	StatePersisting
	StateDone
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateValidating:       "validating",
	StateRejected:         "rejected",
	StateAttemptingRemote: "attempting_remote",
	StateRemoteSucceeded:  "remote_succeeded",
	StateRemoteFailed:     "remote_failed",
	StateRunningFallback:  "running_fallback",
	StateScoring:          "scoring",
	StateRetrieving:       "retrieving",
	StatePersisting:       "persisting",
	StateDone:             "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrValidation is matched by every [*ValidationError].
var ErrValidation = errors.New("pipeline: invalid request")

// ValidationError rejects a request before any processing. Field names the
// offending request field using its wire name, e.g. "text" or
// "correction_type_ids[2]".
type ValidationError struct {
	Field  string
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether target is [ErrValidation].
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }
