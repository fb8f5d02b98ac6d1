package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Wikid82/aegis/internal/config"
	"github.com/Wikid82/aegis/internal/database"
	"github.com/Wikid82/aegis/internal/logger"
	"github.com/Wikid82/aegis/internal/metrics"
	"github.com/Wikid82/aegis/internal/models"
	"github.com/Wikid82/aegis/internal/server"
	"github.com/Wikid82/aegis/internal/services"
	"github.com/Wikid82/aegis/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log().WithError(err).Fatal("load config")
	}

	// Setup logging with rotation
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		logger.Log().WithError(err).Fatal("create log directory")
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "aegis.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.Debug, io.MultiWriter(os.Stdout, rotator))

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		logger.Log().WithError(err).Fatal("connect database")
	}

	// Handle CLI commands
	if len(os.Args) > 1 {
		if err := db.AutoMigrate(&models.Operator{}); err != nil {
			logger.Log().WithError(err).Fatal("migrate operators")
		}
		runCommand(services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL), os.Args[1:])
		return
	}

	metrics.Register(prometheus.DefaultRegisterer)

	srv, err := server.New(db, cfg)
	if err != nil {
		logger.Log().WithError(err).Fatal("build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log().WithField("port", cfg.HTTPPort).Infof("starting %s", version.Full())
	if err := srv.Run(ctx); err != nil {
		logger.Log().WithError(err).Fatal("server error")
	}
	logger.Log().Info("shutdown complete")
}

func runCommand(auth *services.AuthService, args []string) {
	switch args[0] {
	case "reset-password":
		if len(args) != 3 {
			logger.Log().Fatalf("Usage: %s reset-password <email> <new-password>", os.Args[0])
		}
		if err := auth.ResetPassword(args[1], args[2]); err != nil {
			logger.Log().WithError(err).Fatal("reset password")
		}
		logger.Log().Infof("Password updated successfully for operator %s", args[1])
	case "create-operator":
		if len(args) != 5 {
			logger.Log().Fatalf("Usage: %s create-operator <email> <name> <password> <role>", os.Args[0])
		}
		op, err := auth.CreateOperator(args[1], args[2], args[3], args[4])
		if err != nil {
			logger.Log().WithError(err).Fatal("create operator")
		}
		logger.Log().WithField("uuid", op.UUID).Infof("Operator %s created with role %s", op.Email, op.Role)
	default:
		logger.Log().Fatalf("unknown command %q (expected reset-password or create-operator)", args[0])
	}
}
