package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/aegis/internal/config"
	"github.com/Wikid82/aegis/internal/database"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Environment: "test",
		HTTPPort:    "0",
		JWTSecret:   "test-secret",
		TokenTTL:    time.Hour,
		Actions:     config.ActionsConfig{EffectorTimeout: time.Second, LockMode: "memory"},
		Effectors:   config.EffectorsConfig{QuarantineDir: t.TempDir()},
	}
}

func TestNew(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := database.Connect("file:server_new?mode=memory&cache=shared")
	require.NoError(t, err)

	srv, err := New(db, testConfig(t))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	w = httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "route not found")
}

func TestRunStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := database.Connect("file:server_run?mode=memory&cache=shared")
	require.NoError(t, err)

	srv, err := New(db, testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunStopsExpirySweeper(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := database.Connect("file:server_expiry?mode=memory&cache=shared")
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Actions.ExpirySchedule = "@every 1h"
	cfg.Actions.SuggestionTTL = time.Hour
	srv, err := New(db, cfg)
	require.NoError(t, err)
	require.True(t, srv.expiry.Running())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.expiry.Running())
}
