package models

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&ActionExecution{}, &ActionLogEntry{}, &WatchlistEntry{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func TestActionExecution_BeforeCreate(t *testing.T) {
	db := setupTestDB(t)
	a := &ActionExecution{ConversationID: "conv1", ChatMessageID: "msg1", Type: ActionBlockIP, SuggestedAt: time.Now()}
	require.NoError(t, db.Create(a).Error)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, StatusPending, a.Status)
}

func TestActionExecution_StatusFollowsTimestamps(t *testing.T) {
	db := setupTestDB(t)
	a := &ActionExecution{ConversationID: "conv1", ChatMessageID: "msg1", Type: ActionBlockIP, SuggestedAt: time.Now()}
	require.NoError(t, db.Create(a).Error)

	// A status assigned by hand does not survive a save.
	a.Status = StatusRolledBack
	now := time.Now()
	a.ExecutedAt = &now
	require.NoError(t, db.Save(a).Error)
	assert.Equal(t, StatusExecuted, a.Status)

	var stored ActionExecution
	require.NoError(t, db.First(&stored, "id = ?", a.ID).Error)
	assert.Equal(t, StatusExecuted, stored.Status)
}

func TestWatchlistEntry_BeforeCreate(t *testing.T) {
	db := setupTestDB(t)
	w := &WatchlistEntry{Kind: "ip", Value: "1.2.3.4"}
	require.NoError(t, db.Create(w).Error)
	assert.NotEmpty(t, w.UUID)
}
