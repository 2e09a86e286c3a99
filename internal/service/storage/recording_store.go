package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"rtc-coordinator/pkg/logger"
)

// RecordingStoreConfig holds MinIO settings for call recordings
type RecordingStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
	URLExpiry time.Duration
}

// RecordingStore issues presigned upload URLs for recording objects.
// The recording client uploads media directly; the coordinator never
// handles media bytes.
type RecordingStore struct {
	client *minio.Client
	bucket string
	region string
	expiry time.Duration
}

// NewRecordingStore creates a MinIO-backed recording store
func NewRecordingStore(cfg RecordingStoreConfig) (*RecordingStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &RecordingStore{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		expiry: expiry,
	}, nil
}

// EnsureBucket creates the recordings bucket when it does not exist
func (s *RecordingStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	logger.Info("Created recordings bucket", zap.String("bucket", s.bucket))
	return nil
}

// PresignUpload returns a time-limited PUT URL for objectKey
func (s *RecordingStore) PresignUpload(ctx context.Context, objectKey string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectKey, s.expiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign recording upload: %w", err)
	}
	return u.String(), nil
}
