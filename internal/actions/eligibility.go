package actions

import (
	"fmt"
	"time"

	"github.com/Wikid82/aegis/internal/models"
)

// Eligibility is the outcome of a rollback eligibility check.
type Eligibility struct {
	OK     bool
	Reason string
	Err    error
}

// Eligible decides whether rec may be rolled back at now. It is the only
// implementation of the rollback precondition chain: record exists, status is
// executed, type is reversible, undo window not elapsed.
func Eligible(rec *models.ActionExecution, def Definition, now time.Time) Eligibility {
	if rec == nil {
		return deny(ErrActionNotFound)
	}
	if status := rec.DeriveStatus(); status != models.StatusExecuted || rec.ExecutedAt == nil {
		return deny(&TransitionError{Operation: models.OpRollback, Status: status})
	}
	if !def.Reversible {
		return deny(fmt.Errorf("%w: %s", ErrNotReversible, rec.Type))
	}
	elapsed := now.Sub(*rec.ExecutedAt)
	if elapsed > def.UndoWindow {
		return deny(&UndoWindowError{Elapsed: elapsed, Window: def.UndoWindow})
	}
	return Eligibility{OK: true, Reason: fmt.Sprintf("rollback available for %s more", HumanDuration(def.UndoWindow-elapsed))}
}

func deny(err error) Eligibility {
	return Eligibility{OK: false, Reason: err.Error(), Err: err}
}
