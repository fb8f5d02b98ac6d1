package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Wikid82/aegis/internal/actions"
	"github.com/Wikid82/aegis/internal/api/handlers"
	"github.com/Wikid82/aegis/internal/api/middleware"
	"github.com/Wikid82/aegis/internal/cerberus"
	"github.com/Wikid82/aegis/internal/config"
	"github.com/Wikid82/aegis/internal/effectors"
	"github.com/Wikid82/aegis/internal/logger"
	"github.com/Wikid82/aegis/internal/models"
	"github.com/Wikid82/aegis/internal/services"
)

// Register wires up API routes, performs automatic migrations and starts the
// expiry sweeper when a schedule is configured. The returned sweeper is nil
// when expiry is disabled; callers Stop it on shutdown.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) (*services.ExpiryService, error) {
	if err := db.AutoMigrate(
		&models.ActionExecution{},
		&models.ActionLogEntry{},
		&models.ActionLock{},
		&models.SecurityDecision{},
		&models.WatchlistEntry{},
		&models.Operator{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	cerb := cerberus.New(db, cfg.GateEnabled)
	catalog, err := BuildCatalog(db, cfg, cerb.Invalidate)
	if err != nil {
		return nil, err
	}

	store := services.NewActionStore(db)
	opts := []services.ActionServiceOption{services.WithEffectorTimeout(cfg.Actions.EffectorTimeout)}
	if cfg.Actions.LockMode == "lease" {
		if cfg.Actions.LockLease <= cfg.Actions.EffectorTimeout {
			logger.Log().WithFields(map[string]interface{}{
				"lease":   cfg.Actions.LockLease.String(),
				"timeout": cfg.Actions.EffectorTimeout.String(),
			}).Warn("Lock lease does not exceed the effector timeout; a slow effector may lose its lock")
		}
		opts = append(opts, services.WithLocker(services.NewLeaseLocker(db, cfg.Actions.LockLease)))
	}
	if len(cfg.Notify.URLs) > 0 {
		opts = append(opts, services.WithNotifier(services.NewNotificationService(cfg.Notify.URLs)))
	}
	actionService := services.NewActionService(store, catalog, opts...)
	statsService := services.NewStatisticsService(store)

	var expiry *services.ExpiryService
	if cfg.Actions.ExpirySchedule != "" && cfg.Actions.SuggestionTTL > 0 {
		expiry = services.NewExpiryService(store, actionService, cfg.Actions.SuggestionTTL)
		if err := expiry.Start(cfg.Actions.ExpirySchedule); err != nil {
			return nil, err
		}
		logger.Log().WithField("schedule", cfg.Actions.ExpirySchedule).Info("Expiry sweeper started")
	}

	router.GET("/api/v1/health", handlers.NewHealthHandler(db, cfg.GateEnabled).Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	authService := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL)
	authHandler := handlers.NewAuthHandler(authService)
	actionHandler := handlers.NewActionHandler(actionService, statsService, catalog)

	// The undo path stays outside the gate: an operator caught by a block
	// must still be able to log in and roll that block back.
	api.POST("/auth/login", authHandler.Login)
	undo := api.Group("/")
	undo.Use(middleware.AuthMiddleware(authService))
	undo.GET("/auth/me", authHandler.Me)
	undo.GET("/actions/:id", actionHandler.Get)
	undo.GET("/actions/:id/can-rollback", actionHandler.CanRollback)
	undo.POST("/actions/:id/rollback", middleware.RequireRole("operator", "admin"), actionHandler.Rollback)

	// Everything else rejects requests from addresses blocked by an executed
	// BlockIP action.
	protected := api.Group("/")
	protected.Use(cerb.Middleware(), middleware.AuthMiddleware(authService))
	protected.GET("/action-types", actionHandler.ActionTypes)
	protected.GET("/actions/statistics", actionHandler.Statistics)
	protected.GET("/conversations/:id/actions/pending", actionHandler.ListPending)
	protected.GET("/conversations/:id/actions/history", actionHandler.ListHistory)
	protected.POST("/actions", middleware.RequireRole("assistant", "operator", "admin"), actionHandler.Suggest)
	protected.POST("/actions/:id/execute", middleware.RequireRole("operator", "admin"), actionHandler.Execute)

	return expiry, nil
}

// BuildCatalog registers the built-in action types against their configured
// backends and applies undo window and reversibility overrides. Environment
// overrides win over the catalog file. onDecisionChange, if set, runs after a
// BlockIP action writes or removes a decision.
func BuildCatalog(db *gorm.DB, cfg config.Config, onDecisionChange func()) (*actions.Catalog, error) {
	deps := effectors.Dependencies{
		DB:               db,
		QuarantineDir:    cfg.Effectors.QuarantineDir,
		BlockMinPrefixV4: cfg.Effectors.BlockMinPrefixV4,
		BlockMinPrefixV6: cfg.Effectors.BlockMinPrefixV6,
		DecisionsChanged: onDecisionChange,
	}

	if cli, err := effectors.NewDockerClient(cfg.Effectors.DockerHost); err != nil {
		logger.Log().WithError(err).Warn("Docker unavailable; isolate_host actions will fail")
	} else {
		deps.Docker = cli
	}

	switch {
	case cfg.Effectors.TicketGitHubRepo != "":
		gh, err := effectors.NewGitHubIssues(cfg.Effectors.TicketGitHubToken, cfg.Effectors.TicketGitHubRepo)
		if err != nil {
			return nil, err
		}
		deps.Tickets = gh
	case cfg.Effectors.TicketWebhookURL != "":
		wh, err := effectors.NewWebhookTickets(cfg.Effectors.TicketWebhookURL)
		if err != nil {
			return nil, err
		}
		deps.Tickets = wh
	default:
		logger.Log().Warn("No ticket backend configured; create_ticket actions will fail")
	}

	catalog := actions.NewCatalog()
	if err := effectors.RegisterBuiltins(catalog, deps); err != nil {
		return nil, fmt.Errorf("register action types: %w", err)
	}

	var fromFile map[models.ActionType]actions.Override
	if cfg.Actions.CatalogFile != "" {
		var err error
		if fromFile, err = actions.LoadOverrides(cfg.Actions.CatalogFile); err != nil {
			return nil, err
		}
	}
	fromEnv := actions.OverridesFromMaps(cfg.Actions.UndoWindows, cfg.Actions.Reversible)
	if err := catalog.ApplyOverrides(actions.MergeOverrides(fromFile, fromEnv)); err != nil {
		return nil, fmt.Errorf("apply catalog overrides: %w", err)
	}
	return catalog, nil
}
