package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Wikid82/aegis/internal/version"
)

// HealthHandler reports service metadata and whether the action store is
// reachable. A store that cannot answer makes the service unhealthy: no
// suggestion, execution or rollback can be recorded without it.
type HealthHandler struct {
	db          *gorm.DB
	gateEnabled bool
}

func NewHealthHandler(db *gorm.DB, gateEnabled bool) *HealthHandler {
	return &HealthHandler{db: db, gateEnabled: gateEnabled}
}

// Check responds 200 when the database answers a ping, 503 otherwise.
func (h *HealthHandler) Check(c *gin.Context) {
	status, code, database := "ok", http.StatusOK, "ok"
	if err := h.ping(c.Request.Context()); err != nil {
		status, code, database = "degraded", http.StatusServiceUnavailable, "unreachable"
	}
	c.JSON(code, gin.H{
		"status":       status,
		"service":      version.Name,
		"version":      version.Version,
		"git_commit":   version.GitCommit,
		"build_time":   version.BuildTime,
		"database":     database,
		"gate_enabled": h.gateEnabled,
	})
}

func (h *HealthHandler) ping(ctx context.Context) error {
	if h.db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
