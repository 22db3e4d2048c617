package artifact

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/orthogate/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketSource reads artifacts from an S3-compatible bucket, for deployments
// where generated reports are mirrored to object storage instead of disk.
type BucketSource struct {
	client *minio.Client
	bucket string
}

// NewBucketSource connects to the bucket described by cfg. The bucket must
// already exist; the gateway never creates or writes to it.
func NewBucketSource(ctx context.Context, cfg config.MinioConfig) (*BucketSource, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &BucketSource{client: cli, bucket: cfg.Bucket}, nil
}

func (s *BucketSource) Name() string { return "minio" }

func (s *BucketSource) Open(ctx context.Context, name string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", name, err)
	}

	// GetObject is lazy; Stat performs the request and surfaces missing keys.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("stat object %s: %w", name, err)
	}

	return &Object{Body: obj, Size: info.Size}, nil
}

var _ Source = (*BucketSource)(nil)
