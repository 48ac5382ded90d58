package library

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/loqalabs/loqa-dictation/internal/config"
)

// S3Mirror uploads saved recordings to an S3-compatible bucket.
type S3Mirror struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewS3Mirror(cfg config.S3Config) (*S3Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Mirror{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key returns the object key used for filename.
func (m *S3Mirror) Key(filename string) string {
	return path.Join(m.prefix, filename)
}

func (m *S3Mirror) Upload(ctx context.Context, filename, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	_, err = m.client.PutObject(ctx, m.bucket, m.Key(filename), f, info.Size(), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	return nil
}
