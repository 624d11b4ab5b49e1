package cmds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sloggorm "github.com/orandin/slog-gorm"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/credexam/certification-api/internal/artifactgen"
	"github.com/credexam/certification-api/internal/artifactstore"
	"github.com/credexam/certification-api/internal/callback"
	"github.com/credexam/certification-api/internal/config"
	"github.com/credexam/certification-api/internal/logger"
	"github.com/credexam/certification-api/internal/queue"
	"github.com/credexam/certification-api/internal/render"
)

var consumers int

func init() {
	runCmd.Flags().IntVar(&consumers, "consumers", 2, "number of concurrent queue consumers")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume artifact generation jobs until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "runCmd")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load config")
			return err
		}

		logger.LogLevel.Set(slog.Level(cfg.Logging.App.Level))

		db, err := openDatabase(cfg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to initialize database")
			return err
		}

		store, err := buildStore(cfg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to construct artifact store")
			return err
		}

		if cfg.Azure == nil {
			err := errors.New("worker requires an azure queue configuration")
			span.RecordError(err)
			span.SetStatus(codes.Error, "no queue configured")
			return err
		}

		queuer, err := queue.NewAzureQueuer(
			cfg.Azure.StorageAccount.Name,
			cfg.Azure.StorageAccount.Key,
			cfg.Azure.StorageAccount.Queues.URL,
			cfg.Azure.StorageAccount.Queues.Artifacts,
			cfg.Worker.MaxDeliveries,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to construct queue client")
			return err
		}

		visibilityTimeout := time.Duration(cfg.Worker.VisibilityTimeoutSecs) * time.Second

		generator := artifactgen.NewGenerator(
			db,
			store,
			render.NewPDFRenderer(),
			callback.NewDefaultHTTPNotifier(),
			visibilityTimeout,
		)
		handler := artifactgen.NewHandler(generator)

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "worker initialized")

		group, groupCtx := errgroup.WithContext(ctx)
		for range consumers {
			group.Go(func() error {
				return consume(groupCtx, queuer, visibilityTimeout, handler)
			})
		}

		return group.Wait()
	},
}

// consume pulls one message at a time until the context is cancelled. Queue
// errors are logged and backed off, not fatal; the queue holds the work.
func consume(
	ctx context.Context,
	queuer queue.Queuer,
	visibilityTimeout time.Duration,
	handler queue.MessageHandler,
) error {
	logger.Logger.InfoContext(ctx, "consuming artifact jobs",
		"visibilityTimeout", visibilityTimeout,
	)

	for {
		if err := queuer.Dequeue(ctx, visibilityTimeout, handler); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Logger.InfoContext(ctx, "worker shutting down")
				return nil
			}

			logger.Logger.ErrorContext(ctx, "failed to consume from queue", "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(10 * time.Second):
			}
		}
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := slog.New(logger.Handler)

	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)

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

// buildStore mirrors the server's resolution order so both ends of the queue
// talk to the same storage.
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
	return artifactstore.NewRetryStore(store), nil
}
