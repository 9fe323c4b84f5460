package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/lib/pq" // PostgreSQL driver

	"invoice-intake/internal/broker"
	"invoice-intake/internal/config"
	"invoice-intake/internal/constants"
	"invoice-intake/internal/ingestion"
	"invoice-intake/internal/logger"
	"invoice-intake/internal/migrations"
	"invoice-intake/internal/source"
	"invoice-intake/pkg/metrics"
	"invoice-intake/pkg/middleware"
	"invoice-intake/pkg/ratelimit"
)

type App struct {
	config    *config.Config
	logger    logger.Logger
	db        *sql.DB
	publisher *broker.AlertPublisher
	server    *http.Server
	router    *gin.Engine
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.initServer()

	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	pg := a.config.Database.Postgres
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	if a.config.Database.RunMigrations {
		if err := migrations.Run(db); err != nil {
			return err
		}
		a.logger.InfowCtx(ctx, "Database migrations applied")
	}

	a.db = db
	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.Intake.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.Intake.RateLimit.RPS,
			Burst:           a.config.Intake.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.Intake.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.Intake.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	metrics.Register()

	repo := ingestion.NewCircuitBreakerRepository(
		ingestion.NewPostgresRepository(a.db),
		a.config.CircuitBreaker,
	)

	var alerts ingestion.AlertSink = ingestion.NewPostgresAlertSink(a.db)
	if a.config.Broker.Type == "kafka" {
		a.publisher = broker.NewAlertPublisher(a.config.Broker.Kafka, a.logger)
		alerts = broker.NewPublishingAlertSink(alerts, a.publisher, a.logger)
		a.logger.Infow("Alert publishing enabled", "topic", a.config.Broker.Kafka.AlertTopic)
	}

	opts := []ingestion.ServiceOption{}
	if a.config.Sources.APEmail.Enabled {
		client := source.NewAPEmailClient(a.config.Sources.APEmail)
		opts = append(opts, ingestion.WithAPEmailSource(source.NewAdapter("ap-email", client)))
	}
	if a.config.Sources.Accounting.Enabled {
		client := source.NewAccountingClient(a.config.Sources.Accounting)
		opts = append(opts, ingestion.WithAccountingSource(source.NewAdapter("accounting", client)))
	}

	svc := ingestion.NewService(repo, alerts, a.logger, opts...)

	handler := ingestion.NewHandler(svc, a.logger)
	handler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		if err := a.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("alert publisher close error: %w", err))
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
