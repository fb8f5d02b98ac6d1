package services

import (
	"github.com/Wikid82/aegis/internal/models"
)

// ActionStatistics aggregates the action records for dashboards.
type ActionStatistics struct {
	Total                int64                         `json:"total"`
	ByStatus             map[models.ActionStatus]int64 `json:"by_status"`
	ByType               map[models.ActionType]int64   `json:"by_type"`
	ExecutionSuccessRate float64                       `json:"execution_success_rate"`
	RollbackRate         float64                       `json:"rollback_rate"`
	ExecutionFailures    int64                         `json:"execution_failures"`
	RollbackFailures     int64                         `json:"rollback_failures"`
	RejectedAttempts     int64                         `json:"rejected_attempts"`
}

// StatisticsService computes read-only aggregates over the action store.
type StatisticsService struct {
	store *ActionStore
}

// NewStatisticsService returns a StatisticsService reading from store.
func NewStatisticsService(store *ActionStore) *StatisticsService {
	return &StatisticsService{store: store}
}

// Statistics returns counts by status and type plus execution and rollback rates.
func (s *StatisticsService) Statistics() (*ActionStatistics, error) {
	byStatus, err := s.store.CountByStatus()
	if err != nil {
		return nil, err
	}
	byType, err := s.store.CountByType()
	if err != nil {
		return nil, err
	}
	outcomes, err := s.store.CountLogOutcomes()
	if err != nil {
		return nil, err
	}

	stats := &ActionStatistics{ByStatus: byStatus, ByType: byType}
	for _, n := range byStatus {
		stats.Total += n
	}

	executed := byStatus[models.StatusExecuted]
	rolledBack := byStatus[models.StatusRolledBack]
	failed := byStatus[models.StatusFailed]

	// Rolled back actions were executed successfully first.
	stats.ExecutionSuccessRate = ratio(executed+rolledBack, executed+rolledBack+failed)
	stats.RollbackRate = ratio(rolledBack, executed+rolledBack)

	stats.ExecutionFailures = outcomes[models.OpExecute][models.OutcomeFailed]
	stats.RollbackFailures = outcomes[models.OpRollback][models.OutcomeFailed]
	for _, byOutcome := range outcomes {
		stats.RejectedAttempts += byOutcome[models.OutcomeRejected]
	}
	return stats, nil
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
