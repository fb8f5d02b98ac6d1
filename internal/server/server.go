package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Wikid82/aegis/internal/api/middleware"
	"github.com/Wikid82/aegis/internal/api/routes"
	"github.com/Wikid82/aegis/internal/config"
	"github.com/Wikid82/aegis/internal/services"
)

// Server wraps the HTTP engine and shared dependencies for easier testing.
type Server struct {
	Engine *gin.Engine
	cfg    config.Config
	expiry *services.ExpiryService
}

// New wires up the HTTP router and registers versioned routes.
func New(db *gorm.DB, cfg config.Config) (*Server, error) {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
		if cfg.Environment == "development" {
			gin.SetMode(gin.DebugMode)
		}
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(cfg.Debug),
		middleware.SecurityHeaders(cfg.Environment == "development"),
	)

	expiry, err := routes.Register(router, db, cfg)
	if err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return &Server{Engine: router, cfg: cfg, expiry: expiry}, nil
}

// Run starts the HTTP server and shuts it down gracefully when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.HTTPPort),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		// Effectors run detached from request contexts, so give in-flight
		// executions up to the effector timeout to record their outcome.
		grace := s.cfg.Actions.EffectorTimeout + 5*time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		// Wait for an in-flight sweep before the caller closes the database.
		s.expiry.Stop()
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		s.expiry.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
