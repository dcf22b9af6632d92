package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"claims_backend/platform/apperr"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOService validates and reads claim files in one bucket.
type MinIOService struct {
	client      *minio.Client
	bucket      string
	maxFileSize int64
}

// NewMinIOService creates a new MinIO storage service.
func NewMinIOService(cfg Config) (*MinIOService, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOService{
		client:      client,
		bucket:      cfg.GetMinioBucketClaimFiles(),
		maxFileSize: cfg.GetMinIOMaxFileSize(),
	}, nil
}

// EnsureBucketExists creates the claim bucket if it doesn't exist.
func (s *MinIOService) EnsureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}

	return nil
}

// Validate stats the object and checks its stored content type and size.
func (s *MinIOService) Validate(ctx context.Context, p string, kind FileKind) (FileInfo, error) {
	key, err := CleanPath(p)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return FileInfo{}, invalidFile(fmt.Sprintf("file %q was not uploaded", key))
		}
		return FileInfo{}, apperr.Wrap(apperr.KindInternal, "stat claim file failed", err)
	}

	if err := ValidateContentType(info.ContentType, kind); err != nil {
		return FileInfo{}, err
	}
	if err := ValidateFileSize(info.Size, s.maxFileSize); err != nil {
		return FileInfo{}, err
	}

	return FileInfo{
		Path:         key,
		ContentType:  normalizeContentType(info.ContentType),
		SizeBytes:    info.Size,
		LastModified: info.LastModified,
	}, nil
}

// ReadObject downloads at most maxBytes of an object.
func (s *MinIOService) ReadObject(ctx context.Context, p string, maxBytes int64) ([]byte, error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	if maxBytes <= 0 {
		maxBytes = s.maxFileSize
	}
	data, err := io.ReadAll(io.LimitReader(obj, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, errors.New("object exceeds read limit")
	}
	return data, nil
}

var (
	_ FileValidator = (*MinIOService)(nil)
	_ ObjectReader  = (*MinIOService)(nil)
	_ FileValidator = PathValidator{}
	_ FileScanner   = UpstreamScanner{}
)
