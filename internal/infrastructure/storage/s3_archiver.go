// Package storage provides object storage implementations for ledger archival.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	compensationapp "github.com/mallstock/backend/internal/application/compensation"
	"github.com/mallstock/backend/internal/domain/compensation"
	infraconfig "github.com/mallstock/backend/internal/infrastructure/config"
)

// Ensure S3LedgerArchiver implements LedgerArchiver
var _ compensationapp.LedgerArchiver = (*S3LedgerArchiver)(nil)

// objectStoreAPI is the subset of the S3 client the archiver uses.
type objectStoreAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3LedgerArchiver writes batches of terminal compensation records to an
// S3-compatible object store before they are purged from the database.
// It works with any S3-compatible backend (AWS S3, RustFS, MinIO, etc.)
type S3LedgerArchiver struct {
	client objectStoreAPI
	bucket string
	clock  func() time.Time
	logger *zap.Logger
}

// S3LedgerArchiverOption is a functional option for configuring S3LedgerArchiver
type S3LedgerArchiverOption func(*S3LedgerArchiver)

// WithLogger sets a custom logger for S3LedgerArchiver
func WithLogger(logger *zap.Logger) S3LedgerArchiverOption {
	return func(a *S3LedgerArchiver) {
		a.logger = logger
	}
}

// withClient replaces the S3 client. Used by tests.
func withClient(client objectStoreAPI) S3LedgerArchiverOption {
	return func(a *S3LedgerArchiver) {
		a.client = client
	}
}

// withClock replaces the time source. Used by tests.
func withClock(clock func() time.Time) S3LedgerArchiverOption {
	return func(a *S3LedgerArchiver) {
		a.clock = clock
	}
}

// NewS3LedgerArchiver creates a new S3LedgerArchiver from configuration.
// It supports any S3-compatible storage backend (AWS S3, RustFS, MinIO, etc.)
func NewS3LedgerArchiver(cfg *infraconfig.ArchiveConfig, opts ...S3LedgerArchiverOption) (*S3LedgerArchiver, error) {
	if cfg == nil {
		return nil, errors.New("archive configuration is required")
	}

	// Validate required configuration
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("archive access key is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("archive secret key is required")
	}

	// Build endpoint URL
	endpoint := cfg.Endpoint
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid archive endpoint: %w", err)
		}
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (not used for static credentials)
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	// Create S3 client with path-style addressing and custom endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	archiver := &S3LedgerArchiver{
		client: client,
		bucket: cfg.Bucket,
		clock:  time.Now,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(archiver)
	}

	return archiver, nil
}

// Archive uploads one JSON object containing the whole batch. The batch
// is never split: either the object lands or the caller keeps the records.
func (a *S3LedgerArchiver) Archive(ctx context.Context, records []compensation.CompensationRecord) error {
	if len(records) == 0 {
		return nil
	}

	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode archive batch: %w", err)
	}

	key := a.objectKey()
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive batch: %w", err)
	}

	a.logger.Info("Archived compensation batch",
		zap.String("key", key),
		zap.Int("records", len(records)))
	return nil
}

// objectKey builds a date-partitioned key so batches can be replayed
// or expired per day.
func (a *S3LedgerArchiver) objectKey() string {
	now := a.clock().UTC()
	return fmt.Sprintf("compensations/%s/%s.json", now.Format("2006-01-02"), uuid.New().String())
}

// GetBucket returns the bucket name
func (a *S3LedgerArchiver) GetBucket() string {
	return a.bucket
}
