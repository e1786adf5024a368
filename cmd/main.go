package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/bracket-engine/brackets"
	"github.com/Dosada05/bracket-engine/config"
	"github.com/Dosada05/bracket-engine/db"
	"github.com/Dosada05/bracket-engine/handlers"
	"github.com/Dosada05/bracket-engine/metrics"
	"github.com/Dosada05/bracket-engine/middleware"
	"github.com/Dosada05/bracket-engine/notifications"
	"github.com/Dosada05/bracket-engine/repositories"
	api "github.com/Dosada05/bracket-engine/routes"
	"github.com/Dosada05/bracket-engine/services"
	"github.com/Dosada05/bracket-engine/storage"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("application exited")
}

func run() error {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.String("log_level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, db.DefaultPool, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	if cfg.MigrateOnStart {
		if err := db.Migrate(dbConn); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// Хранилище вложений (Cloudflare R2) опционально: без него загрузка отвечает 502
	var uploader storage.FileUploader
	if cfg.R2.Enabled() {
		uploader, err = storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			BucketName:      cfg.R2.BucketName,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		logger.Info("Cloudflare R2 uploader initialized", slog.String("bucket", cfg.R2.BucketName))
	} else {
		logger.Warn("Cloudflare R2 is not configured, attachment uploads are disabled")
	}

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run(ctx)

	// Инициализация репозиториев
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)

	// Очередь уведомлений и доставка
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermill.NewSlogLogger(logger))
	queue := notifications.NewQueue(pubsub)

	deliverers := []notifications.Deliverer{notifications.NewWebSocketDeliverer(wsHub)}
	if cfg.SMTP.Enabled() {
		mailer := notifications.NewSMTPMailer(notifications.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			User:               cfg.SMTP.User,
			Password:           cfg.SMTP.Password,
			From:               cfg.SMTP.From,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
		deliverers = append(deliverers, notifications.NewEmailDeliverer(mailer, participantRepo, cfg.PublicURL, logger))
		logger.Info("email notifications enabled", slog.String("smtp_host", cfg.SMTP.Host))
	}

	dispatcherCfg := notifications.DefaultDispatcherConfig()
	dispatcherCfg.MaxRetries = cfg.Notifications.MaxRetries
	dispatcherCfg.InitialInterval = cfg.Notifications.RetryInterval
	dispatcherCfg.Registry = registry
	dispatcher, err := notifications.NewDispatcher(pubsub, logger, appMetrics, dispatcherCfg, deliverers...)
	if err != nil {
		return err
	}
	dispatcherDone := make(chan error, 1)
	go func() { dispatcherDone <- dispatcher.Run(ctx) }()

	// Инициализация сервисов
	generator := brackets.NewSingleEliminationGenerator()
	bracketService := services.NewBracketService(dbConn, tournamentRepo, participantRepo, matchRepo, generator, queue, logger, appMetrics)
	matchService := services.NewMatchService(dbConn, matchRepo, tournamentRepo, queue, logger, appMetrics)
	disputeService := services.NewDisputeService(dbConn, matchRepo, tournamentRepo, queue, logger, appMetrics)
	attachmentService := services.NewAttachmentService(matchRepo, uploader, logger)
	logger.Info("services initialized")

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Dependencies{
		JWTSecret:   []byte(cfg.JWTSecretKey),
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateLimiter: limiter,
		Metrics:     appMetrics,
		Gatherer:    registry,
		Brackets:    handlers.NewBracketHandler(bracketService),
		Matches:     handlers.NewMatchHandler(matchService),
		Disputes:    handlers.NewDisputeHandler(disputeService),
		Attachments: handlers.NewAttachmentHandler(attachmentService),
		WebSocket:   handlers.NewWebSocketHandler(wsHub, cfg.CORSOrigins, logger),
		Health:      handlers.NewHealthHandler(dbConn.PingContext),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			stop()
			return fmt.Errorf("server error: %w", err)
		}
	case err := <-dispatcherDone:
		stop()
		if err != nil {
			logger.Error("notification dispatcher stopped", slog.Any("error", err))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
	}

	// сначала дожидаемся доставки уже принятых уведомлений, потом закрываем очередь
	if err := dispatcher.Close(); err != nil {
		logger.Error("failed to close notification dispatcher", slog.Any("error", err))
	}
	if err := pubsub.Close(); err != nil {
		logger.Error("failed to close notification queue", slog.Any("error", err))
	}
	logger.Info("server shutdown complete")
	return nil
}
