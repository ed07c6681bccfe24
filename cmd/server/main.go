package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/learnhub/server/internal/config"
	"github.com/learnhub/server/internal/database"
	"github.com/learnhub/server/internal/handlers"
	"github.com/learnhub/server/internal/identity"
	"github.com/learnhub/server/internal/middleware"
	"github.com/learnhub/server/internal/services"
	"github.com/learnhub/server/internal/store"
	"github.com/learnhub/server/pkg/logger"
)

func main() {
	logger.Init()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.SeedBootstrapAdmins(db, cfg.Auth.BootstrapAdminEmails); err != nil {
		log.Fatalf("failed seeding bootstrap admins: %v", err)
	}

	verifier, err := identity.Init(context.Background(), cfg.Auth)
	if err != nil {
		log.Fatalf("identity provider initialization failed: %v", err)
	}

	var auditService *services.AuditService
	if cfg.Audit.Enabled {
		auditService = services.NewAuditService(db, cfg.Audit.QueueSize)
	}

	users := store.NewUserStore(db)
	syncService := services.NewSyncService(users, auditService)
	authMiddleware := middleware.NewAuthMiddleware(verifier, users, syncService)

	app := handlers.NewApp(handlers.AppDeps{
		Auth:        authMiddleware,
		Users:       users,
		Sync:        syncService,
		Audit:       auditService,
		FrontendURL: cfg.Server.FrontendURL,
		HealthCheck: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	})

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":          cfg.Server.Port,
		"address":       listenAddr,
		"auth_provider": cfg.Auth.Provider,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
			log.Printf("forced shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := auditService.Close(ctx); err != nil {
		logger.Error("audit_drain_failed", err, nil)
	}
	if err := identity.Shutdown(); err != nil {
		logger.Error("identity_shutdown_failed", err, nil)
	}
	if err := database.Close(db); err != nil {
		logger.Error("database_close_failed", err, nil)
	}
	logger.Info("server_stopped", nil)
}
