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

	"github.com/labstack/echo/v4"
	sloggorm "github.com/orandin/slog-gorm"
	otellib "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/credexam/certification-api/cmd/server/internal/attempts"
	servermiddleware "github.com/credexam/certification-api/cmd/server/internal/middleware"
	"github.com/credexam/certification-api/cmd/server/internal/migrations"
	"github.com/credexam/certification-api/cmd/server/internal/routes"
	routesv1 "github.com/credexam/certification-api/cmd/server/internal/routes/v1"
	"github.com/credexam/certification-api/internal/artifactgen"
	"github.com/credexam/certification-api/internal/artifactjob"
	"github.com/credexam/certification-api/internal/artifactstore"
	"github.com/credexam/certification-api/internal/callback"
	"github.com/credexam/certification-api/internal/config"
	"github.com/credexam/certification-api/internal/grading"
	"github.com/credexam/certification-api/internal/logger"
	"github.com/credexam/certification-api/internal/models"
	"github.com/credexam/certification-api/internal/otel"
	"github.com/credexam/certification-api/internal/queue"
	"github.com/credexam/certification-api/internal/render"
)

const name string = "github.com/credexam/certification-api/cmd/server"

var tracer = otellib.Tracer(name)

type server struct {
	router       *echo.Echo
	config       *config.Config
	db           *gorm.DB
	attempts     *attempts.Service
	otelShutdown func(context.Context) error
	sweepCancel  func()
}

func initServer(ctx context.Context) (*server, error) {
	server := new(server)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize server config: %w", err)
	}
	server.config = cfg

	shutdownOTel, err := otel.SetupOTelSDK(ctx, cfg.Logging.UseOTLP)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL SDK: %w", err)
	}
	defer func() {
		// Something failed to initialize, make sure everything gets flushed to the server
		if server.otelShutdown == nil {
			otelShutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				time.Second*time.Duration(cfg.GracefulShutdownSecs),
			)
			defer cancel()

			if err = shutdownOTel(otelShutdownCtx); err != nil {
				logger.Logger.Error("failed to flush otel data", "error", err)
			}
		}
	}()

	ctx, span := tracer.Start(ctx, "initServer")
	defer span.End()

	logger.LogLevel.Set(slog.Level(cfg.Logging.App.Level))

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to initialize database")
		return nil, err
	}

	span.AddEvent("initialized database connection")

	err = migrations.Up(ctx, db)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to perform database migrations")
		return nil, fmt.Errorf("failed to perform database migrations: %w", err)
	}

	span.AddEvent("migrated database to latest version")

	if err = models.LoadAPIKeysFromConfig(ctx, db, cfg.Clients); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load API keys from config")
		return nil, fmt.Errorf("failed to load API keys from config: %w", err)
	}

	span.AddEvent("loaded api keys from config")

	store, err := buildStore(cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct artifact store")
		return nil, err
	}

	span.AddEvent("initialized artifact store")

	queuer, err := buildQueuer(cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct artifact queue")
		return nil, err
	}

	producer := artifactjob.NewProducer(queuer)

	// The generator doubles as the synchronous fallback when no queue is
	// reachable; the same lease discipline applies on both paths.
	generator := artifactgen.NewGenerator(
		db,
		store,
		render.NewPDFRenderer(),
		callback.NewDefaultHTTPNotifier(),
		time.Duration(cfg.Worker.VisibilityTimeoutSecs)*time.Second,
	)

	attemptService := attempts.NewService(
		db,
		grading.NewEvaluator(cfg.Grading.SimilarityThreshold),
		producer,
		generator,
	)

	v1Handler := routesv1.NewHandler(db, attemptService, store, cfg)
	middlewareHandler := servermiddleware.Create(db)

	e, err := routes.BuildEcho(logger.Logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error building router")
		return nil, fmt.Errorf("error building router: %w", err)
	}

	span.AddEvent("created echo router")

	v1Handler.AddRoutes(e, middlewareHandler)

	server.otelShutdown = shutdownOTel
	server.router = e
	server.db = db
	server.attempts = attemptService

	return server, nil
}

func openDatabase(_ context.Context, cfg *config.Config) (*gorm.DB, error) {
	gormLogger := slog.New(logger.Handler)

	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)
	if cfg.Logging.Gorm.TraceQueries {
		sg = sloggorm.New(
			sloggorm.WithHandler(gormLogger.Handler()),
			sloggorm.WithTraceAll(),
			sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
		)
	}

	db, err := gorm.Open(
		postgres.Open(cfg.PostgresDSN()),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire underlying database connection: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(cfg.Postgres.ConnectionTTL)

	if err := db.Use(gormtracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("failed to add otel plugin to gorm: %w", err)
	}

	return db, nil
}

// buildStore resolves the artifact store in a fixed order: Azure blob storage
// when configured, otherwise the S3 compatible archive. Config validation
// already guaranteed at least one is present.
func buildStore(cfg *config.Config) (artifactstore.Store, error) {
	if cfg.Azure != nil {
		store, err := artifactstore.NewAzureStore(
			cfg.Azure.StorageAccount.Name,
			cfg.Azure.StorageAccount.Key,
			cfg.Azure.StorageAccount.Containers.URL,
			cfg.Azure.StorageAccount.Containers.Artifacts,
		)
		if err != nil {
			return nil, err
		}

		logger.Logger.Info("using azure artifact store",
			"container", cfg.Azure.StorageAccount.Containers.Artifacts,
		)
		return artifactstore.NewRetryStore(store), nil
	}

	store, err := artifactstore.NewMinioStore(
		cfg.S3Archive.Endpoint,
		cfg.S3Archive.AccessKeyID,
		cfg.S3Archive.SecretAccessKey,
		cfg.S3Archive.SSLEnabled,
		cfg.S3Archive.BucketName,
	)
	if err != nil {
		return nil, err
	}

	logger.Logger.Info("using s3 artifact store", "bucket", cfg.S3Archive.BucketName)
	return artifactstore.NewRetryStore(store), nil
}

// buildQueuer returns nil without error when no queue is configured; the
// producer then reports every enqueue as refused and the attempts service
// generates synchronously.
func buildQueuer(cfg *config.Config) (queue.Queuer, error) {
	if cfg.Azure == nil {
		logger.Logger.Warn("no artifact queue configured; generating artifacts synchronously")
		return nil, nil
	}

	return queue.NewAzureQueuer(
		cfg.Azure.StorageAccount.Name,
		cfg.Azure.StorageAccount.Key,
		cfg.Azure.StorageAccount.Queues.URL,
		cfg.Azure.StorageAccount.Queues.Artifacts,
		cfg.Worker.MaxDeliveries,
	)
}

func (s *server) Start(ctx context.Context) error {
	sweepCtx, sweepCancel := context.WithCancel(ctx)
	s.sweepCancel = sweepCancel
	go s.runAbandonSweep(sweepCtx)

	logger.Logger.Info("Starting services...")

	err := s.router.Start(s.config.ListenAddress)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// runAbandonSweep periodically moves in-progress attempts past their deadline
// to abandoned.
func (s *server) runAbandonSweep(ctx context.Context) {
	interval := time.Duration(s.config.AbandonSweepSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.attempts.AbandonExpired(ctx, now); err != nil {
				logger.Logger.ErrorContext(ctx, "abandon sweep failed", "error", err)
			}
		}
	}
}

func (s *server) Shutdown() error {
	var errs error

	ctx, cancelTimeout := context.WithTimeout(
		context.Background(),
		time.Second*time.Duration(s.config.GracefulShutdownSecs),
	)
	defer cancelTimeout()

	if s.sweepCancel != nil {
		s.sweepCancel()
	}

	if err := s.router.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	if s.otelShutdown != nil {
		errs = errors.Join(errs, s.otelShutdown(ctx))
	}

	return errs
}

// @title						Certification API
// @version					0.1
// @securityDefinitions.basic	BasicAuth
func main() {
	ctx, cancelSignal := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)

	logger.InitSlog()

	server, err := initServer(ctx)
	if err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	errch := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Got shutdown signal!")
		errch <- server.Shutdown()
		close(errch)
	}()

	if err := server.Start(ctx); err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	if err := <-errch; err != nil {
		logger.Logger.Error("Error shutting down server", "error", err)
	}

	cancelSignal()
}
