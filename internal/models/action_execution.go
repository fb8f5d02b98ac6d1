package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActionType names a remediation action registered in the action catalog.
type ActionType string

const (
	ActionBlockIP        ActionType = "block_ip"
	ActionIsolateHost    ActionType = "isolate_host"
	ActionQuarantineFile ActionType = "quarantine_file"
	ActionAddToWatchlist ActionType = "add_to_watchlist"
	ActionCreateTicket   ActionType = "create_ticket"
)

// ActionStatus is the lifecycle state of an ActionExecution.
type ActionStatus string

const (
	StatusPending    ActionStatus = "pending"
	StatusExecuted   ActionStatus = "executed"
	StatusRolledBack ActionStatus = "rolled_back"
	StatusFailed     ActionStatus = "failed"
	StatusExpired    ActionStatus = "expired"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ActionStatus{StatusPending, StatusExecuted, StatusRolledBack, StatusFailed, StatusExpired}

// ActionExecution is a suggested remediation action together with its
// execution/rollback audit trail.
//
// Status is persisted only so it can be indexed. It is recomputed from the
// timestamps and markers on every save and every load; never assign it.
type ActionExecution struct {
	ID             string         `json:"id" gorm:"primaryKey;type:char(36)"`
	ConversationID string         `json:"conversation_id" gorm:"not null;index:idx_action_conversation_status,priority:1"`
	ChatMessageID  string         `json:"chat_message_id" gorm:"not null;index"`
	Type           ActionType     `json:"type" gorm:"not null;index"`
	ActionData     datatypes.JSON `json:"action_data"`
	Status         ActionStatus   `json:"status" gorm:"not null;index:idx_action_conversation_status,priority:2"`
	SuggestedAt    time.Time      `json:"suggested_at" gorm:"not null;index"`

	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	ExecutedBy string     `json:"executed_by,omitempty"`

	RolledBackAt   *time.Time `json:"rolled_back_at,omitempty"`
	RolledBackBy   string     `json:"rolled_back_by,omitempty"`
	RollbackReason string     `json:"rollback_reason,omitempty" gorm:"type:text"`

	FailedAt  *time.Time `json:"failed_at,omitempty"`
	ExpiredAt *time.Time `json:"expired_at,omitempty"`

	BeforeState datatypes.JSON `json:"before_state,omitempty"`
	AfterState  datatypes.JSON `json:"after_state,omitempty"`

	ExecutionLog []ActionLogEntry `json:"execution_log" gorm:"foreignKey:ActionID;references:ID"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DeriveStatus computes the status from the transition timestamps and the
// failure/expiry markers.
func (a *ActionExecution) DeriveStatus() ActionStatus {
	switch {
	case a.RolledBackAt != nil:
		return StatusRolledBack
	case a.ExecutedAt != nil:
		return StatusExecuted
	case a.FailedAt != nil:
		return StatusFailed
	case a.ExpiredAt != nil:
		return StatusExpired
	default:
		return StatusPending
	}
}

// AppendLog adds the next entry to the execution log and returns it.
func (a *ActionExecution) AppendLog(op LogOperation, outcome LogOutcome, actor, detail string, at time.Time) ActionLogEntry {
	entry := ActionLogEntry{
		ActionID:  a.ID,
		Seq:       len(a.ExecutionLog) + 1,
		At:        at,
		Operation: op,
		Outcome:   outcome,
		Actor:     actor,
		Detail:    detail,
	}
	a.ExecutionLog = append(a.ExecutionLog, entry)
	return entry
}

// BeforeCreate assigns the id.
func (a *ActionExecution) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave keeps the persisted status in step with the timestamps.
func (a *ActionExecution) BeforeSave(tx *gorm.DB) error {
	a.Status = a.DeriveStatus()
	return nil
}

// AfterFind recomputes status on load.
func (a *ActionExecution) AfterFind(tx *gorm.DB) error {
	a.Status = a.DeriveStatus()
	return nil
}
