package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	region          string
	prefix          string
	useSSL          bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL: false,
		region: "us-east-1",
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// Publisher uploads result datasets to an S3 compatible bucket.
type Publisher struct {
	cfg    *minioConfig
	client *minio.Client
}

func NewPublisher(opts ...MinioOpts) (*Publisher, error) {
	cfg := newConfig(opts...)
	if cfg.endpoint == "" || cfg.bucket == "" {
		return nil, fmt.Errorf("object store endpoint and bucket are required")
	}

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, err
	}
	return &Publisher{cfg: cfg, client: minioClient}, nil
}

// Publish uploads the local file and returns its bucket/object location.
// The object is named <prefix>/<runID>/<base name of localPath>.
func (p *Publisher) Publish(ctx context.Context, localPath, runID string) (string, error) {
	object := path.Join(p.cfg.prefix, runID, filepath.Base(localPath))
	_, err := p.client.FPutObject(ctx, p.cfg.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
		UserMetadata: map[string]string{
			"run-id": runID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", localPath, err)
	}
	return p.cfg.bucket + "/" + object, nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

func WithRegion(region string) MinioOpts {
	return func(c *minioConfig) {
		c.region = region
	}
}

// WithPrefix sets the key prefix under which runs are stored.
func WithPrefix(prefix string) MinioOpts {
	return func(c *minioConfig) {
		c.prefix = strings.Trim(prefix, "/")
	}
}
