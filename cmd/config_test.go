package cmd

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/airframesio/report-archiver/cmd/pipeline"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			Name:     "testdb",
		},
		Storage: StorageConfig{
			Backend: backendS3,
			S3: S3Config{
				Endpoint:  "https://s3.example.com",
				Bucket:    "test-bucket",
				AccessKey: "access123",
				SecretKey: "secret456",
				Region:    "us-east-1",
			},
		},
		Archive: ArchiveConfig{
			PathTemplate:     "archives/{kind}/{YYYY}/{MM}",
			Compression:      "zstd",
			CompressionLevel: 3,
		},
		Server: ServerConfig{Listen: ":8080"},
		Auth:   AuthConfig{JWTSecret: strings.Repeat("s", 32)},
		Report: ReportConfig{
			MaxMonths:     6,
			BatchSize:     1000,
			PurgeTimeout:  5 * time.Minute,
			DefaultFormat: "xlsx",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("valid config should not return error: %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"MissingDatabaseUser", func(c *Config) { c.Database.User = "" }, ErrDatabaseUserRequired},
		{"MissingDatabaseName", func(c *Config) { c.Database.Name = "" }, ErrDatabaseNameRequired},
		{"InvalidPort", func(c *Config) { c.Database.Port = 70000 }, ErrDatabasePortInvalid},
		{"NegativeStatementTimeout", func(c *Config) { c.Database.StatementTimeout = -1 }, ErrStatementTimeoutInvalid},
		{"UnknownBackend", func(c *Config) { c.Storage.Backend = "ftp" }, ErrStorageBackendInvalid},
		{"MissingS3Bucket", func(c *Config) { c.Storage.S3.Bucket = "" }, ErrS3BucketRequired},
		{"MissingS3SecretKey", func(c *Config) { c.Storage.S3.SecretKey = "" }, ErrS3SecretKeyRequired},
		{"InvalidRegion", func(c *Config) { c.Storage.S3.Region = "us east 1" }, ErrS3RegionInvalid},
		{"MissingGCSBucket", func(c *Config) { c.Storage.Backend = backendGCS }, ErrGCSBucketRequired},
		{"UnknownPlaceholder", func(c *Config) { c.Archive.PathTemplate = "{table}/{YYYY}" }, ErrPathTemplateInvalid},
		{"InvalidCompression", func(c *Config) { c.Archive.Compression = "brotli" }, ErrCompressionInvalid},
		{"InvalidCompressionLevel", func(c *Config) { c.Archive.CompressionLevel = 30 }, ErrCompressionLevelInvalid},
		{"MissingJWTSecret", func(c *Config) { c.Auth.JWTSecret = "" }, ErrJWTSecretRequired},
		{"ShortJWTSecret", func(c *Config) { c.Auth.JWTSecret = "short" }, ErrJWTSecretTooShort},
		{"MaxMonthsZero", func(c *Config) { c.Report.MaxMonths = 0 }, ErrMaxMonthsInvalid},
		{"BatchSizeZero", func(c *Config) { c.Report.BatchSize = 0 }, ErrBatchSizeInvalid},
		{"BatchSizeOverBindLimit", func(c *Config) { c.Report.BatchSize = 70000 }, ErrBatchSizeInvalid},
		{"BatchSizeAboveMax", func(c *Config) { c.Report.BatchSize = pipeline.MaxBatchSize + 1 }, ErrBatchSizeInvalid},
		{"PurgeTimeoutZero", func(c *Config) { c.Report.PurgeTimeout = 0 }, ErrPurgeTimeoutInvalid},
		{"InvalidDefaultFormat", func(c *Config) { c.Report.DefaultFormat = "parquet" }, ErrDefaultFormatInvalid},
		{"InvalidTopicOrderColumn", func(c *Config) { c.Source.TopicOrderColumn = "id; DROP TABLE x" }, ErrTopicOrderColumnInvalid},
		{"MissingListen", func(c *Config) { c.Server.Listen = " " }, ErrListenAddressRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMemoryBackendNeedsNoCredentials(t *testing.T) {
	config := validConfig()
	config.Storage = StorageConfig{Backend: backendMemory}
	if err := config.Validate(); err != nil {
		t.Fatalf("memory backend should validate: %v", err)
	}
}

func TestValidateForResumeSkipsServerSettings(t *testing.T) {
	config := validConfig()
	config.Auth.JWTSecret = ""
	config.Server.Listen = ""
	if err := config.ValidateForResume(); err != nil {
		t.Fatalf("resume should not need server settings: %v", err)
	}
}

func TestPipelineOptions(t *testing.T) {
	opts := validConfig().pipelineOptions()
	if opts.MaxMonths != 6 || opts.BatchSize != 1000 || opts.Compression != "zstd" {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestCompressionLevelValidation(t *testing.T) {
	tests := []struct {
		compression string
		level       int
		valid       bool
	}{
		{"zstd", 1, true},
		{"zstd", 22, true},
		{"zstd", 23, false},
		{"lz4", 9, true},
		{"gzip", 0, false},
		{"none", 0, true},
		{"none", 1, false},
	}
	for _, tt := range tests {
		if got := isValidCompressionLevel(tt.compression, tt.level); got != tt.valid {
			t.Fatalf("isValidCompressionLevel(%s, %d) = %v, want %v", tt.compression, tt.level, got, tt.valid)
		}
	}
}
