package models

import "time"

// LogOperation is the transition an execution log entry records.
type LogOperation string

const (
	OpExecute  LogOperation = "execute"
	OpRollback LogOperation = "rollback"
	OpExpire   LogOperation = "expire"
)

// LogOutcome is the result of a transition attempt.
type LogOutcome string

const (
	OutcomeSucceeded LogOutcome = "succeeded"
	OutcomeFailed    LogOutcome = "failed"
	OutcomeRejected  LogOutcome = "rejected"
)

// ActionLogEntry is one append-only line of an action's execution log.
// Rows are only ever inserted; (action_id, seq) is unique.
type ActionLogEntry struct {
	ID        uint         `json:"-" gorm:"primaryKey"`
	ActionID  string       `json:"-" gorm:"type:char(36);not null;uniqueIndex:idx_action_log_seq,priority:1"`
	Seq       int          `json:"seq" gorm:"not null;uniqueIndex:idx_action_log_seq,priority:2"`
	At        time.Time    `json:"at"`
	Operation LogOperation `json:"operation" gorm:"index"`
	Outcome   LogOutcome   `json:"outcome" gorm:"index"`
	Actor     string       `json:"actor,omitempty"`
	Detail    string       `json:"detail,omitempty" gorm:"type:text"`
}
