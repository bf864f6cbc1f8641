package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/airframesio/report-archiver/cmd/locks"
	"github.com/airframesio/report-archiver/cmd/pipeline"
	"github.com/airframesio/report-archiver/cmd/source"
	"github.com/airframesio/report-archiver/cmd/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report export endpoints",
	Long: `Serve the export-satisfaction and export-work-performance endpoints, the
satisfaction summary, and a websocket stream of close-cycle progress.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlags(cmd.Flags(), backendFlagBindings)
		bindFlags(cmd.Flags(), serveFlagBindings)
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

var serveFlagBindings = map[string]string{
	"server.listen":          "listen",
	"server.allowed_origins": "allowed-origins",
	"auth.jwt_secret":        "jwt-secret",
	"redis.addr":             "redis-addr",
	"redis.password":         "redis-password",
	"redis.db":               "redis-db",
	"redis.lock_ttl":         "redis-lock-ttl",
}

// backendFlagBindings are shared by every command that touches the database
// and the archive store
var backendFlagBindings = map[string]string{
	"db.host":                   "db-host",
	"db.port":                   "db-port",
	"db.user":                   "db-user",
	"db.password":               "db-password",
	"db.name":                   "db-name",
	"db.sslmode":                "db-sslmode",
	"db.statement_timeout":      "db-statement-timeout",
	"db.max_retries":            "db-max-retries",
	"db.retry_delay":            "db-retry-delay",
	"source.topic_order_column": "topic-order-column",
	"storage.backend":           "storage-backend",
	"s3.endpoint":               "s3-endpoint",
	"s3.bucket":                 "s3-bucket",
	"s3.access_key":             "s3-access-key",
	"s3.secret_key":             "s3-secret-key",
	"s3.region":                 "s3-region",
	"gcs.bucket":                "gcs-bucket",
	"gcs.credentials_file":      "gcs-credentials-file",
	"archive.path_template":     "path-template",
	"archive.compression":       "compression",
	"archive.compression_level": "compression-level",
	"report.max_months":         "max-months",
	"report.batch_size":         "batch-size",
	"report.purge_timeout":      "purge-timeout",
	"report.default_format":     "default-format",
}

func addBackendFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("db-host", "localhost", "PostgreSQL host")
	flags.Int("db-port", 5432, "PostgreSQL port")
	flags.String("db-user", "", "PostgreSQL user")
	flags.String("db-password", "", "PostgreSQL password")
	flags.String("db-name", "", "PostgreSQL database name")
	flags.String("db-sslmode", "disable", "PostgreSQL SSL mode (disable, require, verify-ca, verify-full)")
	flags.Int("db-statement-timeout", 300, "PostgreSQL statement timeout in seconds (0 = no timeout)")
	flags.Int("db-max-retries", 3, "Maximum number of retry attempts for the initial connection")
	flags.Int("db-retry-delay", 5, "Delay in seconds between retry attempts")
	flags.String("topic-order-column", "id", "numeric feedback_topics column that orders the category columns")

	flags.String("storage-backend", backendS3, "archive store: s3, gcs, memory")
	flags.String("s3-endpoint", "", "S3-compatible endpoint URL (empty for AWS)")
	flags.String("s3-bucket", "", "S3 bucket name")
	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region", "auto", "S3 region")
	flags.String("gcs-bucket", "", "GCS bucket name")
	flags.String("gcs-credentials-file", "", "GCS service account JSON (default: application default credentials)")

	flags.String("path-template", "archives/{kind}/{YYYY}/{MM}", "archive key prefix with placeholders: {kind}, {YYYY}, {MM}, {DD}")
	flags.String("compression", "none", "archive compression: zstd, lz4, gzip, none")
	flags.Int("compression-level", 0, "compression level (zstd: 1-22, lz4/gzip: 1-9, none: 0)")

	flags.Int("max-months", pipeline.DefaultMaxMonths, "maximum export span in months")
	flags.Int("batch-size", pipeline.DefaultBatchSize, "rows deleted per purge batch")
	flags.Duration("purge-timeout", pipeline.DefaultPurgeTimeout, "upper bound for the whole purge phase")
	flags.String("default-format", "xlsx", "artifact format when a request names none: csv, xlsx")
}

func init() {
	addBackendFlags(serveCmd)

	flags := serveCmd.Flags()
	flags.String("listen", ":8080", "HTTP listen address")
	flags.StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")
	flags.String("jwt-secret", "", "HS256 secret used to verify bearer tokens")
	flags.String("redis-addr", "", "Redis address for a lock shared between replicas (optional)")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")
	flags.Duration("redis-lock-ttl", locks.DefaultLockTTL, "Redis lock TTL, refreshed while held")
}

// backends are the long-lived collaborators of the pipeline
type backends struct {
	source  *source.Postgres
	store   storage.ObjectStore
	locker  locks.Locker
	closers []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Debug(fmt.Sprintf("Error closing backend: %v", err))
		}
	}
}

func openStore(ctx context.Context, config *Config) (storage.ObjectStore, func() error, error) {
	switch config.Storage.Backend {
	case backendS3:
		store, err := storage.NewS3Store(storage.S3Config{
			Endpoint:  config.Storage.S3.Endpoint,
			Bucket:    config.Storage.S3.Bucket,
			AccessKey: config.Storage.S3.AccessKey,
			SecretKey: config.Storage.S3.SecretKey,
			Region:    config.Storage.S3.Region,
		})
		return store, nil, err
	case backendGCS:
		store, err := storage.NewGCSStore(ctx, config.Storage.GCS.Bucket, config.Storage.GCS.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		logger.Warn("⚠️  Using in-memory archive store; archives are lost on exit")
		return storage.NewMemoryStore(), nil, nil
	}
}

func openBackends(ctx context.Context, config *Config) (*backends, error) {
	b := &backends{}

	logger.Debug("Connecting to database...")
	src, err := source.Open(ctx, config.sourceConfig(), logger)
	if err != nil {
		return nil, err
	}
	b.source = src
	b.closers = append(b.closers, src.Close)
	logger.Info("✅ Connected to database")

	store, closeStore, err := openStore(ctx, config)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.store = store
	if closeStore != nil {
		b.closers = append(b.closers, closeStore)
	}

	local := locks.NewLocalLocker()
	b.locker = local
	if config.Redis.Addr != "" {
		client := locks.NewRedisClient(config.redisConfig())
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			b.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Redis.Addr, err)
		}
		b.closers = append(b.closers, client.Close)
		b.locker = locks.Chain{local, locks.NewRedisLocker(client, config.Redis.LockTTL, logger)}
		logger.Info(fmt.Sprintf("✅ Using shared close-cycle lock at %s", config.Redis.Addr))
	}

	return b, nil
}

func runServe() error {
	config := loadConfig()

	hub := newProgressHub()
	initLogger(config.Debug, config.LogFormat, hub)

	logger.Info("")
	logger.Info(fmt.Sprintf("🚀 Report Archiver v%s", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	logger.Debug("Validating configuration...")
	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger.Debug("Configuration validated successfully")

	ctx, cancel := commandContext()
	defer cancel()

	b, err := openBackends(ctx, config)
	if err != nil {
		return err
	}
	defer b.Close()

	p, err := pipeline.New(b.source, b.store, b.locker, logger, config.pipelineOptions())
	if err != nil {
		return err
	}
	p.SetObserver(hub)
	watchReportLimits(p)

	hub.start()
	defer hub.stop()

	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(&server{
		pipeline:      p,
		verifier:      newTokenVerifier(config.Auth.JWTSecret),
		hub:           hub,
		defaultFormat: config.Report.DefaultFormat,
		logger:        logger,
	}, config.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:              config.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("🌐 Listening on %s", config.Server.Listen))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("")
	logger.Info("⚠️  Interrupt signal received, shutting down...")

	// In-flight purges keep running on their own context; give them the
	// configured purge budget to finish
	shutdownCtx, stop := context.WithTimeout(context.Background(), config.Report.PurgeTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("✅ Server stopped")
	return nil
}
