package cmd

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/airframesio/report-archiver/cmd/compressors"
	"github.com/airframesio/report-archiver/cmd/formatters"
	"github.com/airframesio/report-archiver/cmd/locks"
	"github.com/airframesio/report-archiver/cmd/pipeline"
	"github.com/airframesio/report-archiver/cmd/source"
	"github.com/airframesio/report-archiver/cmd/storage"
)

// Static errors for configuration validation
var (
	ErrDatabaseUserRequired    = errors.New("database user is required")
	ErrDatabaseNameRequired    = errors.New("database name is required")
	ErrDatabasePortInvalid     = errors.New("database port must be between 1 and 65535")
	ErrStatementTimeoutInvalid = errors.New("database statement timeout must be >= 0")
	ErrMaxRetriesInvalid       = errors.New("database max retries must be >= 0")
	ErrRetryDelayInvalid       = errors.New("database retry delay must be >= 0")
	ErrStorageBackendInvalid   = errors.New("storage backend must be one of: s3, gcs, memory")
	ErrS3BucketRequired        = errors.New("S3 bucket is required")
	ErrS3AccessKeyRequired     = errors.New("S3 access key is required")
	ErrS3SecretKeyRequired     = errors.New("S3 secret key is required")
	ErrS3RegionInvalid         = errors.New("S3 region contains invalid characters or is too long")
	ErrGCSBucketRequired       = errors.New("GCS bucket is required")
	ErrPathTemplateInvalid     = errors.New("path template may only use {kind}, {YYYY}, {MM} and {DD} placeholders")
	ErrCompressionInvalid      = errors.New("compression must be one of: zstd, lz4, gzip, none")
	ErrCompressionLevelInvalid = errors.New("compression level must be between 1 and 22 (zstd), 1-9 (lz4/gzip)")
	ErrJWTSecretRequired       = errors.New("auth JWT secret is required")
	ErrJWTSecretTooShort       = errors.New("auth JWT secret must be at least 32 bytes")
	ErrMaxMonthsInvalid        = errors.New("report max months must be between 1 and 24")
	ErrBatchSizeInvalid        = fmt.Errorf("report batch size must be between 1 and %d", pipeline.MaxBatchSize)
	ErrPurgeTimeoutInvalid     = errors.New("report purge timeout must be > 0")
	ErrDefaultFormatInvalid    = errors.New("report default format must be one of: csv, xlsx")
	ErrTopicOrderColumnInvalid = errors.New("topic order column is invalid: must start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrListenAddressRequired   = errors.New("server listen address is required")
)

const (
	regionAuto = "auto"

	backendS3     = "s3"
	backendGCS    = "gcs"
	backendMemory = "memory"
)

// Config is the server-side configuration shared by serve and purge-resume
type Config struct {
	Debug     bool
	LogFormat string
	Database  DatabaseConfig
	Storage   StorageConfig
	Archive   ArchiveConfig
	Server    ServerConfig
	Auth      AuthConfig
	Report    ReportConfig
	Source    SourceConfig
	Redis     RedisConfig
}

type DatabaseConfig struct {
	Host             string
	Port             int
	User             string
	Password         string
	Name             string
	SSLMode          string
	StatementTimeout int // Statement timeout in seconds (0 = no timeout, default 300)
	MaxRetries       int // Maximum number of connection attempts after the first (default 3)
	RetryDelay       int // Delay in seconds between retry attempts (default 5)
}

type StorageConfig struct {
	Backend string
	S3      S3Config
	GCS     GCSConfig
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

type ArchiveConfig struct {
	PathTemplate     string
	Compression      string
	CompressionLevel int
}

type ServerConfig struct {
	Listen         string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret string
}

type ReportConfig struct {
	MaxMonths     int
	BatchSize     int
	PurgeTimeout  time.Duration
	DefaultFormat string
}

type SourceConfig struct {
	TopicOrderColumn string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// loadConfig reads every server setting from viper
func loadConfig() *Config {
	return &Config{
		Debug:     viper.GetBool("debug"),
		LogFormat: viper.GetString("log_format"),
		Database: DatabaseConfig{
			Host:             viper.GetString("db.host"),
			Port:             viper.GetInt("db.port"),
			User:             viper.GetString("db.user"),
			Password:         viper.GetString("db.password"),
			Name:             viper.GetString("db.name"),
			SSLMode:          viper.GetString("db.sslmode"),
			StatementTimeout: viper.GetInt("db.statement_timeout"),
			MaxRetries:       viper.GetInt("db.max_retries"),
			RetryDelay:       viper.GetInt("db.retry_delay"),
		},
		Storage: StorageConfig{
			Backend: viper.GetString("storage.backend"),
			S3: S3Config{
				Endpoint:  viper.GetString("s3.endpoint"),
				Bucket:    viper.GetString("s3.bucket"),
				AccessKey: viper.GetString("s3.access_key"),
				SecretKey: viper.GetString("s3.secret_key"),
				Region:    viper.GetString("s3.region"),
			},
			GCS: GCSConfig{
				Bucket:          viper.GetString("gcs.bucket"),
				CredentialsFile: viper.GetString("gcs.credentials_file"),
			},
		},
		Archive: ArchiveConfig{
			PathTemplate:     viper.GetString("archive.path_template"),
			Compression:      viper.GetString("archive.compression"),
			CompressionLevel: viper.GetInt("archive.compression_level"),
		},
		Server: ServerConfig{
			Listen:         viper.GetString("server.listen"),
			AllowedOrigins: viper.GetStringSlice("server.allowed_origins"),
		},
		Auth: AuthConfig{
			JWTSecret: viper.GetString("auth.jwt_secret"),
		},
		Report: ReportConfig{
			MaxMonths:     viper.GetInt("report.max_months"),
			BatchSize:     viper.GetInt("report.batch_size"),
			PurgeTimeout:  viper.GetDuration("report.purge_timeout"),
			DefaultFormat: viper.GetString("report.default_format"),
		},
		Source: SourceConfig{
			TopicOrderColumn: viper.GetString("source.topic_order_column"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			LockTTL:  viper.GetDuration("redis.lock_ttl"),
		},
	}
}

// isValidRegion validates that an S3 region is reasonable
func isValidRegion(region string) bool {
	if region == "" || len(region) > 50 {
		return false
	}

	// Region should only contain alphanumeric, dash, and underscore
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, region)
	return matched
}

// isValidCompression reports whether a codec is registered under compression
func isValidCompression(compression string) bool {
	if compression == "" {
		return false
	}
	_, err := compressors.GetCompressor(compression)
	return err == nil
}

// isValidCompressionLevel checks level against the codec's accepted range
func isValidCompressionLevel(compression string, level int) bool {
	c, err := compressors.GetCompressor(compression)
	return err == nil && c.ValidLevel(level)
}

// Validate checks the limits that can be reloaded at runtime
func (c *ReportConfig) Validate() error {
	if c.MaxMonths < 1 || c.MaxMonths > 24 {
		return fmt.Errorf("%w, got %d", ErrMaxMonthsInvalid, c.MaxMonths)
	}
	if c.BatchSize < 1 || c.BatchSize > pipeline.MaxBatchSize {
		return fmt.Errorf("%w, got %d", ErrBatchSizeInvalid, c.BatchSize)
	}
	if c.PurgeTimeout <= 0 {
		return fmt.Errorf("%w, got %s", ErrPurgeTimeoutInvalid, c.PurgeTimeout)
	}
	if _, err := formatters.GetFormatter(c.DefaultFormat); err != nil {
		return fmt.Errorf("%w: '%s'", ErrDefaultFormatInvalid, c.DefaultFormat)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.User == "" {
		return ErrDatabaseUserRequired
	}
	if c.Database.Name == "" {
		return ErrDatabaseNameRequired
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("%w, got %d", ErrDatabasePortInvalid, c.Database.Port)
	}
	if c.Database.StatementTimeout < 0 {
		return fmt.Errorf("%w, got %d", ErrStatementTimeoutInvalid, c.Database.StatementTimeout)
	}
	if c.Database.MaxRetries < 0 {
		return fmt.Errorf("%w, got %d", ErrMaxRetriesInvalid, c.Database.MaxRetries)
	}
	if c.Database.RetryDelay < 0 {
		return fmt.Errorf("%w, got %d", ErrRetryDelayInvalid, c.Database.RetryDelay)
	}
	if c.Source.TopicOrderColumn != "" && !source.IsValidIdentifier(c.Source.TopicOrderColumn) {
		return fmt.Errorf("%w: '%s'", ErrTopicOrderColumnInvalid, c.Source.TopicOrderColumn)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case backendS3:
		if c.Storage.S3.Bucket == "" {
			return ErrS3BucketRequired
		}
		if c.Storage.S3.AccessKey == "" {
			return ErrS3AccessKeyRequired
		}
		if c.Storage.S3.SecretKey == "" {
			return ErrS3SecretKeyRequired
		}
		if c.Storage.S3.Region != "" && c.Storage.S3.Region != regionAuto {
			if !isValidRegion(c.Storage.S3.Region) {
				return fmt.Errorf("%w: %s", ErrS3RegionInvalid, c.Storage.S3.Region)
			}
		}
	case backendGCS:
		if c.Storage.GCS.Bucket == "" {
			return ErrGCSBucketRequired
		}
	case backendMemory:
	default:
		return fmt.Errorf("%w: '%s'", ErrStorageBackendInvalid, c.Storage.Backend)
	}

	if !storage.IsValidPathTemplate(c.Archive.PathTemplate) {
		return fmt.Errorf("%w: '%s'", ErrPathTemplateInvalid, c.Archive.PathTemplate)
	}
	if !isValidCompression(c.Archive.Compression) {
		return fmt.Errorf("%w: '%s'", ErrCompressionInvalid, c.Archive.Compression)
	}
	if !isValidCompressionLevel(c.Archive.Compression, c.Archive.CompressionLevel) {
		return fmt.Errorf("%w for compression %s: got %d", ErrCompressionLevelInvalid, c.Archive.Compression, c.Archive.CompressionLevel)
	}
	return nil
}

// Validate checks the configuration needed to run the server
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.Report.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Server.Listen) == "" {
		return ErrListenAddressRequired
	}
	if c.Auth.JWTSecret == "" {
		return ErrJWTSecretRequired
	}
	if len(c.Auth.JWTSecret) < 32 {
		return ErrJWTSecretTooShort
	}
	return nil
}

// ValidateForResume checks only what purge-resume touches
func (c *Config) ValidateForResume() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.Report.Validate()
}

func (c *Config) sourceConfig() source.Config {
	return source.Config{
		Host:             c.Database.Host,
		Port:             c.Database.Port,
		User:             c.Database.User,
		Password:         c.Database.Password,
		Name:             c.Database.Name,
		SSLMode:          c.Database.SSLMode,
		StatementTimeout: c.Database.StatementTimeout,
		MaxRetries:       c.Database.MaxRetries,
		RetryDelay:       c.Database.RetryDelay,
		TopicOrderColumn: c.Source.TopicOrderColumn,
	}
}

func (c *Config) pipelineOptions() pipeline.Options {
	return pipeline.Options{
		MaxMonths:        c.Report.MaxMonths,
		BatchSize:        c.Report.BatchSize,
		PurgeTimeout:     c.Report.PurgeTimeout,
		Compression:      c.Archive.Compression,
		CompressionLevel: c.Archive.CompressionLevel,
		PathTemplate:     c.Archive.PathTemplate,
	}
}

func (c *Config) redisConfig() locks.RedisConfig {
	return locks.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TTL:      c.Redis.LockTTL,
	}
}
