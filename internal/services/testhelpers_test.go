package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Wikid82/aegis/internal/actions"
	"github.com/Wikid82/aegis/internal/database"
	"github.com/Wikid82/aegis/internal/models"
)

// setupActionDB opens a private in-memory database for the calling test.
func setupActionDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Connect(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ActionExecution{},
		&models.ActionLogEntry{},
		&models.ActionLock{},
		&models.Operator{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeFirewall stands in for a BlockIP backend.
type fakeFirewall struct {
	executions   atomic.Int32
	rollbacks    atomic.Int32
	failExecute  atomic.Bool
	failRollback atomic.Bool
}

func (f *fakeFirewall) Execute(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	f.executions.Add(1)
	if f.failExecute.Load() {
		return nil, nil, errors.New("firewall unreachable")
	}
	var in struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, nil, err
	}
	before, _ := json.Marshal(map[string]bool{"blocked": false})
	after, _ := json.Marshal(map[string]interface{}{"blocked": true, "ip": in.IP})
	return before, after, nil
}

func (f *fakeFirewall) Validate(data json.RawMessage) error {
	var in struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.IP == "" {
		return errors.New("ip is required")
	}
	return nil
}

func (f *fakeFirewall) Rollback(ctx context.Context, before, after json.RawMessage) error {
	f.rollbacks.Add(1)
	if f.failRollback.Load() {
		return errors.New("firewall rejected rule removal")
	}
	return nil
}

// newTestCatalog registers block_ip (1h, reversible) backed by fw and
// create_ticket (not reversible).
func newTestCatalog(t testing.TB, fw *fakeFirewall) *actions.Catalog {
	t.Helper()
	c := actions.NewCatalog()
	require.NoError(t, c.Register(actions.Definition{
		Type:        models.ActionBlockIP,
		UndoWindow:  time.Hour,
		Reversible:  true,
		Effector:    fw,
		Compensator: fw,
	}))
	require.NoError(t, c.Register(actions.Definition{
		Type:       models.ActionCreateTicket,
		UndoWindow: 24 * time.Hour,
		Effector: actions.EffectorFunc(func(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error) {
			return json.RawMessage(`{}`), json.RawMessage(`{"ticket_id":"INC-42"}`), nil
		}),
	}))
	return c
}

type recordingNotifier struct {
	mu      sync.Mutex
	entries []models.ActionLogEntry
}

func (n *recordingNotifier) NotifyTransition(rec *models.ActionExecution, entry models.ActionLogEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
}

func (n *recordingNotifier) all() []models.ActionLogEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.ActionLogEntry(nil), n.entries...)
}
