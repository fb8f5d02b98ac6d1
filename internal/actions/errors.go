package actions

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Wikid82/aegis/internal/models"
)

var (
	ErrUnknownActionType   = errors.New("unknown action type")
	ErrActionNotFound      = errors.New("action not found")
	ErrInvalidSuggestion   = errors.New("invalid suggestion")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrNotReversible       = errors.New("action type is not reversible")
	ErrUndoWindowExpired   = errors.New("undo window expired")
	ErrEffectorFailure     = errors.New("effector failure")
	ErrCompensatorFailure  = errors.New("compensator failure")
	ErrInvalidActionData   = errors.New("invalid action data")
	ErrDuplicateActionType = errors.New("action type already registered")
)

// TransitionError reports an operation attempted from a status that does not permit it.
type TransitionError struct {
	Operation models.LogOperation
	Status    models.ActionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s action with status %s", e.Operation, e.Status)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// UndoWindowError reports a rollback attempted after the type's undo window.
type UndoWindowError struct {
	Elapsed time.Duration
	Window  time.Duration
}

func (e *UndoWindowError) Error() string {
	return fmt.Sprintf("undo window expired: %s since execution, window is %s", HumanDuration(e.Elapsed), HumanDuration(e.Window))
}

func (e *UndoWindowError) Unwrap() error { return ErrUndoWindowExpired }

// EffectorError wraps a failed or timed-out effector call.
type EffectorError struct {
	Type     models.ActionType
	TimedOut bool
	Err      error
}

func (e *EffectorError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("effector for %s timed out: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("effector for %s failed: %v", e.Type, e.Err)
}

func (e *EffectorError) Unwrap() []error { return []error{ErrEffectorFailure, e.Err} }

// CompensatorError wraps a failed or timed-out compensator call.
type CompensatorError struct {
	Type     models.ActionType
	TimedOut bool
	Err      error
}

func (e *CompensatorError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("compensator for %s timed out: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("compensator for %s failed: %v", e.Type, e.Err)
}

func (e *CompensatorError) Unwrap() []error { return []error{ErrCompensatorFailure, e.Err} }

// HumanDuration renders durations for operator-facing messages: "45m", "1h",
// "5.2h", "1h3m".
func HumanDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return strconv.Itoa(int(d.Seconds())) + "s"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m"
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	switch {
	case minutes == 0:
		return strconv.Itoa(hours) + "h"
	case minutes < 6:
		return fmt.Sprintf("%dh%dm", hours, minutes)
	default:
		return strconv.FormatFloat(d.Hours(), 'f', 1, 64) + "h"
	}
}
