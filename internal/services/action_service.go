package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/Wikid82/aegis/internal/actions"
	"github.com/Wikid82/aegis/internal/logger"
	"github.com/Wikid82/aegis/internal/metrics"
	"github.com/Wikid82/aegis/internal/models"
)

// SystemActor is recorded for transitions not triggered by an operator.
const SystemActor = "system"

// TransitionNotifier is told about every logged transition attempt.
type TransitionNotifier interface {
	NotifyTransition(rec *models.ActionExecution, entry models.ActionLogEntry)
}

// ActionService drives the action state machine. Every mutation of a record
// happens under that record's lock, and every transition attempt on an
// existing record is appended to its execution log.
type ActionService struct {
	store    *ActionStore
	catalog  *actions.Catalog
	locker   Locker
	notifier TransitionNotifier
	timeout  time.Duration
	now      func() time.Time
}

// ActionServiceOption customizes an ActionService.
type ActionServiceOption func(*ActionService)

// WithLocker replaces the default in-process KeyedMutex.
func WithLocker(l Locker) ActionServiceOption {
	return func(s *ActionService) { s.locker = l }
}

// WithNotifier registers a transition notifier.
func WithNotifier(n TransitionNotifier) ActionServiceOption {
	return func(s *ActionService) { s.notifier = n }
}

// WithEffectorTimeout bounds each effector and compensator call.
func WithEffectorTimeout(d time.Duration) ActionServiceOption {
	return func(s *ActionService) { s.timeout = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ActionServiceOption {
	return func(s *ActionService) {
		s.now = now
		s.store.now = now
	}
}

// NewActionService returns an ActionService over store and catalog.
func NewActionService(store *ActionStore, catalog *actions.Catalog, opts ...ActionServiceOption) *ActionService {
	s := &ActionService{
		store:   store,
		catalog: catalog,
		locker:  NewKeyedMutex(),
		timeout: 30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest validates the type and payload, then stores a pending record.
// Nothing is persisted when the type is unknown or the payload is rejected.
func (s *ActionService) Suggest(ctx context.Context, conversationID, chatMessageID string, actionType models.ActionType, data json.RawMessage) (*models.ActionExecution, error) {
	def, err := s.catalog.Lookup(actionType)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", actions.ErrInvalidActionData)
	}
	if v, ok := def.Effector.(actions.Validator); ok {
		if err := v.Validate(data); err != nil {
			return nil, fmt.Errorf("%w: %v", actions.ErrInvalidActionData, err)
		}
	}

	rec := &models.ActionExecution{
		ConversationID: conversationID,
		ChatMessageID:  chatMessageID,
		Type:           actionType,
		ActionData:     datatypes.JSON(data),
	}
	if _, err := s.store.Create(rec); err != nil {
		return nil, err
	}

	metrics.IncSuggested(string(actionType))
	logger.ForAction(rec.ID, string(rec.Type)).WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"chat_message_id": chatMessageID,
	}).Info("Action suggested")
	return rec, nil
}

// Get returns a record by id.
func (s *ActionService) Get(ctx context.Context, id string) (*models.ActionExecution, error) {
	return s.store.Get(id)
}

// ListPending returns the pending suggestions of a conversation.
func (s *ActionService) ListPending(ctx context.Context, conversationID string) ([]models.ActionExecution, error) {
	return s.store.ListPending(conversationID)
}

// ListHistory returns all actions of a conversation, newest first.
func (s *ActionService) ListHistory(ctx context.Context, conversationID string) ([]models.ActionExecution, error) {
	return s.store.ListHistory(conversationID)
}

// Execute runs the effector of a pending action. At most one Execute per
// record ever succeeds. On effector failure the record becomes failed and the
// error is returned; there is no retry.
//
// The returned record is non-nil whenever the action exists, including when
// err is non-nil, so callers can show the true status.
func (s *ActionService) Execute(ctx context.Context, id, executedBy string) (*models.ActionExecution, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	def, err := s.catalog.Lookup(rec.Type)
	if err != nil {
		return s.reject(rec, models.OpExecute, executedBy, err)
	}
	if status := rec.DeriveStatus(); status != models.StatusPending {
		return s.reject(rec, models.OpExecute, executedBy, &actions.TransitionError{Operation: models.OpExecute, Status: status})
	}

	var before, after json.RawMessage
	start := time.Now()
	timedOut, runErr := s.bounded(ctx, func(ctx context.Context) error {
		var err error
		before, after, err = def.Effector.Execute(ctx, json.RawMessage(rec.ActionData))
		return err
	})
	metrics.ObserveEffector(string(rec.Type), string(models.OpExecute), time.Since(start))

	now := s.now()
	if runErr != nil {
		effErr := &actions.EffectorError{Type: rec.Type, TimedOut: timedOut, Err: runErr}
		rec.FailedAt = &now
		entry := rec.AppendLog(models.OpExecute, models.OutcomeFailed, executedBy, effErr.Error(), now)
		if err := s.store.Update(rec); err != nil {
			return rec, errors.Join(effErr, fmt.Errorf("persist failed execution: %w", err))
		}
		s.observe(rec, entry)
		return rec, effErr
	}

	rec.BeforeState = datatypes.JSON(before)
	rec.AfterState = datatypes.JSON(after)
	rec.ExecutedAt = &now
	rec.ExecutedBy = executedBy
	entry := rec.AppendLog(models.OpExecute, models.OutcomeSucceeded, executedBy, fmt.Sprintf("executed by %s", executedBy), now)
	if err := s.store.Update(rec); err != nil {
		// The effect is live but unrecorded; operators must reconcile by hand.
		logger.ForAction(rec.ID, string(rec.Type)).WithError(err).Error("Action executed but the result could not be persisted")
		return rec, fmt.Errorf("persist executed action: %w", err)
	}
	s.observe(rec, entry)
	return rec, nil
}

// Rollback runs the compensator of an executed action within its undo
// window. If the compensator fails the record stays executed: the effect was
// not reversed and the record must not claim otherwise.
func (s *ActionService) Rollback(ctx context.Context, id, rolledBackBy, reason string) (*models.ActionExecution, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	def, err := s.catalog.Lookup(rec.Type)
	if err != nil {
		return s.reject(rec, models.OpRollback, rolledBackBy, err)
	}
	if elig := actions.Eligible(rec, def, s.now()); !elig.OK {
		return s.reject(rec, models.OpRollback, rolledBackBy, elig.Err)
	}

	start := time.Now()
	timedOut, runErr := s.bounded(ctx, func(ctx context.Context) error {
		return def.Compensator.Rollback(ctx, json.RawMessage(rec.BeforeState), json.RawMessage(rec.AfterState))
	})
	metrics.ObserveEffector(string(rec.Type), string(models.OpRollback), time.Since(start))

	now := s.now()
	if runErr != nil {
		compErr := &actions.CompensatorError{Type: rec.Type, TimedOut: timedOut, Err: runErr}
		entry := rec.AppendLog(models.OpRollback, models.OutcomeFailed, rolledBackBy, compErr.Error(), now)
		if err := s.store.Update(rec); err != nil {
			return rec, errors.Join(compErr, fmt.Errorf("persist failed rollback: %w", err))
		}
		s.observe(rec, entry)
		return rec, compErr
	}

	rec.RolledBackAt = &now
	rec.RolledBackBy = rolledBackBy
	rec.RollbackReason = reason
	detail := fmt.Sprintf("rolled back by %s", rolledBackBy)
	if reason != "" {
		detail += ": " + reason
	}
	entry := rec.AppendLog(models.OpRollback, models.OutcomeSucceeded, rolledBackBy, detail, now)
	if err := s.store.Update(rec); err != nil {
		logger.ForAction(rec.ID, string(rec.Type)).WithError(err).Error("Action rolled back but the result could not be persisted")
		return rec, fmt.Errorf("persist rolled back action: %w", err)
	}
	s.observe(rec, entry)
	return rec, nil
}

// CanRollback evaluates the rollback preconditions without side effects.
// err is only set when the record cannot be read.
func (s *ActionService) CanRollback(ctx context.Context, id string) (actions.Eligibility, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return actions.Eligibility{Reason: err.Error(), Err: err}, err
	}
	def, err := s.catalog.Lookup(rec.Type)
	if err != nil {
		return actions.Eligibility{Reason: err.Error(), Err: err}, nil
	}
	return actions.Eligible(rec, def, s.now()), nil
}

// Expire marks a pending action as expired. It is called by the expiry
// sweeper, which owns the decision of when a suggestion is stale.
func (s *ActionService) Expire(ctx context.Context, id, detail string) (*models.ActionExecution, error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if status := rec.DeriveStatus(); status != models.StatusPending {
		return s.reject(rec, models.OpExpire, SystemActor, &actions.TransitionError{Operation: models.OpExpire, Status: status})
	}

	now := s.now()
	rec.ExpiredAt = &now
	entry := rec.AppendLog(models.OpExpire, models.OutcomeSucceeded, SystemActor, detail, now)
	if err := s.store.Update(rec); err != nil {
		return rec, fmt.Errorf("persist expired action: %w", err)
	}
	s.observe(rec, entry)
	return rec, nil
}

// reject logs a refused transition attempt and returns cause.
func (s *ActionService) reject(rec *models.ActionExecution, op models.LogOperation, actor string, cause error) (*models.ActionExecution, error) {
	entry := rec.AppendLog(op, models.OutcomeRejected, actor, cause.Error(), s.now())
	if err := s.store.Update(rec); err != nil {
		return rec, errors.Join(cause, fmt.Errorf("persist rejected attempt: %w", err))
	}
	s.observe(rec, entry)
	return rec, cause
}

// bounded runs fn with the effector timeout. The call is detached from the
// caller's cancellation so a dropped request cannot abort a half-applied
// action; only the timeout stops it. If fn ignores its context, bounded
// stops waiting at the deadline anyway so the record lock is released.
func (s *ActionService) bounded(ctx context.Context, fn func(ctx context.Context) error) (timedOut bool, err error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(runCtx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return true, err
		}
		return false, err
	case <-runCtx.Done():
		return true, fmt.Errorf("no response within %s: %w", s.timeout, runCtx.Err())
	}
}

func (s *ActionService) observe(rec *models.ActionExecution, entry models.ActionLogEntry) {
	metrics.IncTransition(string(rec.Type), string(entry.Operation), string(entry.Outcome))

	log := logger.ForAction(rec.ID, string(rec.Type)).WithFields(logrus.Fields{
		"operation": entry.Operation,
		"outcome":   entry.Outcome,
		"actor":     entry.Actor,
		"status":    rec.DeriveStatus(),
	})
	switch entry.Outcome {
	case models.OutcomeSucceeded:
		log.Info("Action transition succeeded")
	case models.OutcomeRejected:
		log.WithField("detail", entry.Detail).Warn("Action transition rejected")
	default:
		log.WithField("detail", entry.Detail).Error("Action transition failed")
	}

	if s.notifier != nil {
		s.notifier.NotifyTransition(rec, entry)
	}
}
