package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Wikid82/aegis/internal/actions"
	"github.com/Wikid82/aegis/internal/models"
)

// mutableColumns are the only columns Update writes. type and action_data are
// absent on purpose: they are fixed at creation.
var mutableColumns = []string{
	"status",
	"executed_at", "executed_by",
	"rolled_back_at", "rolled_back_by", "rollback_reason",
	"failed_at", "expired_at",
	"before_state", "after_state",
	"updated_at",
}

// ActionStore persists ActionExecution records and their execution logs.
// It does not serialize writers; callers mutate a record only while holding
// that record's lock.
type ActionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewActionStore returns an ActionStore using the provided DB.
func NewActionStore(db *gorm.DB) *ActionStore {
	return &ActionStore{db: db, now: time.Now}
}

// Create stores rec as a new pending suggestion and returns its id.
func (s *ActionStore) Create(rec *models.ActionExecution) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: empty record", actions.ErrInvalidSuggestion)
	}
	if strings.TrimSpace(rec.ConversationID) == "" || strings.TrimSpace(rec.ChatMessageID) == "" {
		return "", fmt.Errorf("%w: conversation_id and chat_message_id are required", actions.ErrInvalidSuggestion)
	}

	rec.ID = uuid.NewString()
	rec.SuggestedAt = s.now()
	rec.ExecutedAt, rec.ExecutedBy = nil, ""
	rec.RolledBackAt, rec.RolledBackBy, rec.RollbackReason = nil, "", ""
	rec.FailedAt, rec.ExpiredAt = nil, nil
	rec.BeforeState, rec.AfterState = nil, nil
	rec.ExecutionLog = nil

	if err := s.db.Omit(clause.Associations).Create(rec).Error; err != nil {
		return "", fmt.Errorf("create action: %w", err)
	}
	return rec.ID, nil
}

// Get returns the record with its execution log in order.
func (s *ActionStore) Get(id string) (*models.ActionExecution, error) {
	var rec models.ActionExecution
	if err := s.withLog(s.db).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, actions.ErrActionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListPending returns the pending suggestions of a conversation, newest first.
func (s *ActionStore) ListPending(conversationID string) ([]models.ActionExecution, error) {
	var res []models.ActionExecution
	err := s.withLog(s.db).
		Where("conversation_id = ? AND status = ?", conversationID, models.StatusPending).
		Order("suggested_at desc").
		Find(&res).Error
	return res, err
}

// ListHistory returns every action of a conversation ordered by suggested_at descending.
func (s *ActionStore) ListHistory(conversationID string) ([]models.ActionExecution, error) {
	var res []models.ActionExecution
	err := s.withLog(s.db).
		Where("conversation_id = ?", conversationID).
		Order("suggested_at desc").
		Find(&res).Error
	return res, err
}

// ListPendingBefore returns ids of pending actions suggested before cutoff.
func (s *ActionStore) ListPendingBefore(cutoff time.Time) ([]string, error) {
	var ids []string
	err := s.db.Model(&models.ActionExecution{}).
		Where("status = ? AND suggested_at < ?", models.StatusPending, cutoff).
		Order("suggested_at asc").
		Pluck("id", &ids).Error
	return ids, err
}

// Update writes the mutable columns of rec and appends log entries not yet
// persisted. Existing log entries are never rewritten.
func (s *ActionStore) Update(rec *models.ActionExecution) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(rec).Omit(clause.Associations).Select(mutableColumns).Updates(rec)
		if res.Error != nil {
			return fmt.Errorf("update action: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return actions.ErrActionNotFound
		}

		var lastSeq int
		if err := tx.Model(&models.ActionLogEntry{}).
			Where("action_id = ?", rec.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&lastSeq).Error; err != nil {
			return fmt.Errorf("read log position: %w", err)
		}

		for i := range rec.ExecutionLog {
			entry := &rec.ExecutionLog[i]
			if entry.Seq <= lastSeq {
				continue
			}
			entry.ActionID = rec.ID
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("append log entry %d: %w", entry.Seq, err)
			}
		}
		return nil
	})
}

// CountByStatus returns the number of actions per status, including zeroes.
func (s *ActionStore) CountByStatus() (map[models.ActionStatus]int64, error) {
	var rows []struct {
		Status models.ActionStatus
		Count  int64
	}
	if err := s.db.Model(&models.ActionExecution{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[models.ActionStatus]int64, len(models.AllStatuses))
	for _, st := range models.AllStatuses {
		out[st] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// CountByType returns the number of actions per type.
func (s *ActionStore) CountByType() (map[models.ActionType]int64, error) {
	var rows []struct {
		Type  models.ActionType
		Count int64
	}
	if err := s.db.Model(&models.ActionExecution{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[models.ActionType]int64, len(rows))
	for _, r := range rows {
		out[r.Type] = r.Count
	}
	return out, nil
}

// CountLogOutcomes counts execution log entries by operation and outcome.
func (s *ActionStore) CountLogOutcomes() (map[models.LogOperation]map[models.LogOutcome]int64, error) {
	var rows []struct {
		Operation models.LogOperation
		Outcome   models.LogOutcome
		Count     int64
	}
	if err := s.db.Model(&models.ActionLogEntry{}).
		Select("operation, outcome, COUNT(*) AS count").
		Group("operation, outcome").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[models.LogOperation]map[models.LogOutcome]int64)
	for _, r := range rows {
		if out[r.Operation] == nil {
			out[r.Operation] = make(map[models.LogOutcome]int64)
		}
		out[r.Operation][r.Outcome] = r.Count
	}
	return out, nil
}

func (s *ActionStore) withLog(db *gorm.DB) *gorm.DB {
	return db.Preload("ExecutionLog", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq asc")
	})
}
