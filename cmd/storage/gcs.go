package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrGCSBucketRequired is returned when no bucket is configured
var ErrGCSBucketRequired = errors.New("GCS bucket is required")

// GCSStore writes archives to a Google Cloud Storage bucket
type GCSStore struct {
	bucket string
	client *storage.Client
}

// NewGCSStore creates a client from a credentials file, or from application
// default credentials when credentialsFile is empty
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	if bucket == "" {
		return nil, ErrGCSBucketRequired
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{bucket: bucket, client: client}, nil
}

// PutIfAbsent writes with a does-not-exist precondition, so the check and
// the write are a single atomic request
func (s *GCSStore) PutIfAbsent(ctx context.Context, key string, body []byte, contentType string) error {
	obj := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true})

	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return s.translateWriteError(key, err)
	}
	if err := writer.Close(); err != nil {
		return s.translateWriteError(key, err)
	}
	return nil
}

func (s *GCSStore) translateWriteError(key string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s", ErrObjectExists, s.Location(key))
	}
	return fmt.Errorf("failed to upload %s: %w", s.Location(key), err)
}

// Get opens an archive object for reading
func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, s.Location(key))
		}
		return nil, fmt.Errorf("failed to download %s: %w", s.Location(key), err)
	}
	return reader, nil
}

// Location returns the gs:// URI of key
func (s *GCSStore) Location(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

// Close releases the underlying client
func (s *GCSStore) Close() error {
	return s.client.Close()
}
