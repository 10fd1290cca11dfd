package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/attendance-hub/internal/api/http"
	"github.com/spec-kit/attendance-hub/internal/api/http/handlers"
	"github.com/spec-kit/attendance-hub/internal/auth"
	"github.com/spec-kit/attendance-hub/internal/config"
	"github.com/spec-kit/attendance-hub/internal/events"
	"github.com/spec-kit/attendance-hub/internal/notification"
	"github.com/spec-kit/attendance-hub/internal/observability"
	"github.com/spec-kit/attendance-hub/internal/persistence"
	"github.com/spec-kit/attendance-hub/internal/push"
	"github.com/spec-kit/attendance-hub/internal/service"
	"github.com/spec-kit/attendance-hub/internal/userdata"
	"github.com/spec-kit/attendance-hub/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, err := persistence.OpenStorage(ctx, *cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer storage.Close() //nolint:errcheck

	metrics := observability.NewMetrics()
	bus := events.NewInMemoryDispatcher()

	profiles := userdata.NewStore(storage.Store, bus, logger)
	permissions, err := newPermissionHost(storage, cfg.Notification, logger)
	if err != nil {
		logger.Fatal("invalid push permission settings", zap.Error(err))
	}
	var pushSender notification.PushSender = notification.LogSender{Logger: logger.Named("push")}
	if cfg.Notification.WebhookURL != "" {
		pushSender = notification.WebhookSender{URL: cfg.Notification.WebhookURL}
	}
	dispatcher := notification.NewDispatcher(notification.Dependencies{
		Store:       storage.Store,
		Events:      bus,
		Permissions: permissions,
		Email:       notification.NewEmailChannel(cfg.Notification.EmailFrom, logger),
		Push:        notification.NewPushChannel(permissions, pushSender, metrics, logger),
		Metrics:     metrics,
		Logger:      logger,
	})

	authService := service.NewAuthService(*cfg, service.AuthDependencies{Profiles: profiles, Logger: logger})
	notificationService := service.NewNotificationService(dispatcher, profiles, logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	app := httptransport.NewApp(cfg.App, logger, metrics, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, cfg.Storage.Driver, storage.Store, metrics),
		Users:          handlers.NewUsersHandler(authService),
		Profile:        handlers.NewProfileHandler(profiles),
		Notifications:  handlers.NewNotificationsHandler(dispatcher, notificationService),
		AuthMiddleware: authMiddleware,
	})

	waitReminders := worker.StartReminderWorker(ctx, notificationService, cfg.Notification.ReminderInterval(), logger)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
	waitReminders()
	dispatcher.Wait()
}

func newPermissionHost(storage *persistence.Storage, cfg config.NotificationConfig, logger *zap.Logger) (*push.StoredHost, error) {
	initial, err := push.ParsePermissionState(cfg.PushPermission)
	if err != nil {
		return nil, err
	}
	answer, err := push.ParsePermissionState(cfg.PromptAnswer)
	if err != nil {
		return nil, err
	}
	return push.NewStoredHost(storage.Store, initial, push.FixedAnswer(answer), logger), nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
