package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	httptransport "github.com/repairdesk/repairdesk/internal/api/http"
	"github.com/repairdesk/repairdesk/internal/api/http/handlers"
	"github.com/repairdesk/repairdesk/internal/auth"
	"github.com/repairdesk/repairdesk/internal/config"
	"github.com/repairdesk/repairdesk/internal/events"
	"github.com/repairdesk/repairdesk/internal/line"
	"github.com/repairdesk/repairdesk/internal/observability"
	"github.com/repairdesk/repairdesk/internal/persistence"
	"github.com/repairdesk/repairdesk/internal/repository"
	"github.com/repairdesk/repairdesk/internal/service"
	"github.com/repairdesk/repairdesk/internal/storage"
	"github.com/repairdesk/repairdesk/internal/worker"
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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), afero.NewOsFs(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	store, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to init attachment storage", zap.Error(err))
	}

	var pusher line.Pusher = line.DisabledPusher{}
	if client, err := line.NewClient(cfg.Line); err == nil {
		pusher = client
	} else if errors.Is(err, line.ErrPushDisabled) {
		logger.Warn("LINE_CHANNEL_ACCESS_TOKEN not set; LINE pushes will be recorded as failed")
	} else {
		logger.Fatal("failed to init line client", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)
	logRepo := repository.NewTicketLogRepository(pool)
	linkRepo := repository.NewLineLinkRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	eventStore := repository.NewWebhookEventStore(redis.Client)

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo: userRepo,
		Logger:   logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		AttachmentRepo: attachmentRepo,
		LogRepo:        logRepo,
		UserRepo:       userRepo,
		LinkRepo:       linkRepo,
		Storage:        store,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Metrics:        metrics,
		BcryptCost:     cfg.Auth.BcryptCost,
	})
	linkingService := service.NewLinkingService(service.LinkingDependencies{
		LinkRepo: linkRepo,
		Logger:   logger,
		Config:   cfg.Line,
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		LinkRepo:         linkRepo,
		NotificationRepo: notificationRepo,
		Pusher:           pusher,
		Dispatcher:       dispatcher,
		Logger:           logger,
		Metrics:          metrics,
		TicketURLBase:    cfg.Line.TicketURLBase,
	})
	webhookService := service.NewWebhookService(service.WebhookDependencies{
		Linking:    linkingService,
		Notifier:   notificationService,
		EventStore: eventStore,
		Config:     cfg.Line,
		Logger:     logger,
		Metrics:    metrics,
	})

	worker.StartNotificationWorker(notificationService)
	notificationWorker := worker.NewNotificationWorker(notificationService, store, worker.Config{
		RetryInterval:   cfg.Worker.RetryInterval,
		CleanupInterval: cfg.Worker.CleanupInterval,
		CleanupAge:      time.Duration(cfg.Storage.CleanupAfterDays) * 24 * time.Hour,
	}, logger)
	notificationWorker.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.App.MaxUploadFileBytes)*cfg.App.MaxUploadFiles + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:      logger,
		Metrics:     metrics,
		Timeout:     cfg.App.RequestTimeout(),
		CORSOrigins: cfg.App.CORSOrigins,
	})

	routes := httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Users: handlers.NewUsersHandler(authService),
		Tickets: handlers.NewTicketsHandler(ticketService, handlers.UploadLimits{
			MaxFiles:     cfg.App.MaxUploadFiles,
			MaxFileBytes: cfg.App.MaxUploadFileBytes,
		}),
		Line:           handlers.NewLineHandler(linkingService, webhookService, notificationService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), userRepo),
		Metrics:        metrics,
	}
	if local, ok := store.(*storage.LocalStore); ok {
		routes.UploadsDir = local.Dir()
		routes.UploadsPath = cfg.Storage.PublicPath
	}
	httptransport.RegisterRoutes(app, routes)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.ShutdownWithTimeout(10 * time.Second)
	notificationWorker.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
