package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/aegis/internal/api/middleware"
	"github.com/Wikid82/aegis/internal/services"
)

func setupAuthRouter(t *testing.T) (*gin.Engine, *services.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)
	auth := services.NewAuthService(db, "handler-secret", time.Hour)
	h := NewAuthHandler(auth)

	r := gin.New()
	r.POST("/api/v1/auth/login", h.Login)
	protected := r.Group("/api/v1")
	protected.Use(middleware.AuthMiddleware(auth))
	protected.GET("/auth/me", h.Me)
	return r, auth
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_LoginAndMe(t *testing.T) {
	r, auth := setupAuthRouter(t)
	_, err := auth.CreateOperator("alice@example.com", "Alice", "password123", "operator")
	require.NoError(t, err)

	w := postJSON(r, "/api/v1/auth/login", gin.H{"email": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp["token"])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@example.com")
	assert.Contains(t, w.Body.String(), `"role":"operator"`)
}

func TestAuthHandler_LoginFailures(t *testing.T) {
	r, auth := setupAuthRouter(t)
	_, err := auth.CreateOperator("bob@example.com", "Bob", "password123", "viewer")
	require.NoError(t, err)

	w := postJSON(r, "/api/v1/auth/login", gin.H{"email": "bob@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/api/v1/auth/login", gin.H{"email": "not-an-email", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
