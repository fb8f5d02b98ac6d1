package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/Wikid82/aegis/internal/actions"
	"github.com/Wikid82/aegis/internal/models"
)

func newPendingRecord(conv string) *models.ActionExecution {
	return &models.ActionExecution{
		ConversationID: conv,
		ChatMessageID:  "msg-1",
		Type:           models.ActionBlockIP,
		ActionData:     datatypes.JSON(`{"ip":"192.0.2.1"}`),
	}
}

func TestActionStore_CreateAndGet(t *testing.T) {
	store := NewActionStore(setupActionDB(t))

	rec := newPendingRecord("conv-1")
	rec.ID = "caller-chosen"
	now := time.Now()
	rec.ExecutedAt = &now

	id, err := store.Create(rec)
	require.NoError(t, err)
	assert.NotEqual(t, "caller-chosen", id)
	assert.Len(t, id, 36)

	got, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.ExecutedAt)
	assert.False(t, got.SuggestedAt.IsZero())
	assert.JSONEq(t, `{"ip":"192.0.2.1"}`, string(got.ActionData))
	assert.Empty(t, got.ExecutionLog)
}

func TestActionStore_CreateRequiresProvenance(t *testing.T) {
	store := NewActionStore(setupActionDB(t))

	_, err := store.Create(nil)
	assert.ErrorIs(t, err, actions.ErrInvalidSuggestion)

	rec := newPendingRecord("conv-1")
	rec.ChatMessageID = "  "
	_, err = store.Create(rec)
	assert.ErrorIs(t, err, actions.ErrInvalidSuggestion)
}

func TestActionStore_GetMissing(t *testing.T) {
	store := NewActionStore(setupActionDB(t))
	_, err := store.Get("missing")
	assert.ErrorIs(t, err, actions.ErrActionNotFound)
}

func TestActionStore_UpdateKeepsImmutableColumns(t *testing.T) {
	store := NewActionStore(setupActionDB(t))
	rec := newPendingRecord("conv-1")
	_, err := store.Create(rec)
	require.NoError(t, err)

	now := time.Now()
	rec.Type = models.ActionCreateTicket
	rec.ActionData = datatypes.JSON(`{"ip":"10.0.0.1"}`)
	rec.ExecutedAt = &now
	rec.ExecutedBy = "alice"
	rec.AppendLog(models.OpExecute, models.OutcomeSucceeded, "alice", "", now)
	require.NoError(t, store.Update(rec))

	got, err := store.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBlockIP, got.Type)
	assert.JSONEq(t, `{"ip":"192.0.2.1"}`, string(got.ActionData))
	assert.Equal(t, models.StatusExecuted, got.Status)
	assert.Equal(t, "alice", got.ExecutedBy)
	require.Len(t, got.ExecutionLog, 1)
}

func TestActionStore_UpdateAppendsOnlyNewEntries(t *testing.T) {
	store := NewActionStore(setupActionDB(t))
	rec := newPendingRecord("conv-1")
	_, err := store.Create(rec)
	require.NoError(t, err)

	now := time.Now()
	rec.AppendLog(models.OpExecute, models.OutcomeRejected, "bob", "first", now)
	require.NoError(t, store.Update(rec))

	// A stale copy must not rewrite the persisted entry.
	rec.ExecutionLog[0].Detail = "rewritten"
	rec.AppendLog(models.OpExecute, models.OutcomeRejected, "bob", "second", now)
	require.NoError(t, store.Update(rec))

	got, err := store.Get(rec.ID)
	require.NoError(t, err)
	require.Len(t, got.ExecutionLog, 2)
	assert.Equal(t, "first", got.ExecutionLog[0].Detail)
	assert.Equal(t, "second", got.ExecutionLog[1].Detail)
}

func TestActionStore_UpdateMissing(t *testing.T) {
	store := NewActionStore(setupActionDB(t))
	rec := newPendingRecord("conv-1")
	rec.ID = "not-stored"
	assert.ErrorIs(t, store.Update(rec), actions.ErrActionNotFound)
}

func TestActionStore_ListsAndCounts(t *testing.T) {
	clock := newTestClock()
	store := NewActionStore(setupActionDB(t))
	store.now = clock.Now

	first := newPendingRecord("conv-1")
	_, err := store.Create(first)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	second := newPendingRecord("conv-1")
	_, err = store.Create(second)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	other := newPendingRecord("conv-2")
	other.Type = models.ActionCreateTicket
	_, err = store.Create(other)
	require.NoError(t, err)

	executedAt := clock.Now()
	first.ExecutedAt = &executedAt
	require.NoError(t, store.Update(first))

	pending, err := store.ListPending("conv-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	history, err := store.ListHistory("conv-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)

	stale, err := store.ListPendingBefore(clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, stale)

	byStatus, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(2), byStatus[models.StatusPending])
	assert.Equal(t, int64(1), byStatus[models.StatusExecuted])
	assert.Equal(t, int64(0), byStatus[models.StatusExpired])
	assert.Len(t, byStatus, len(models.AllStatuses))

	byType, err := store.CountByType()
	require.NoError(t, err)
	assert.Equal(t, int64(2), byType[models.ActionBlockIP])
	assert.Equal(t, int64(1), byType[models.ActionCreateTicket])
}
