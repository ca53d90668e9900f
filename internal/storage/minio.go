package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"` // e.g. localhost:9000
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Token     string `mapstructure:"token"`
	Region    string `mapstructure:"region"`
	Secure    bool   `mapstructure:"secure"`
}

// MinIOStore reads objects from one MinIO bucket
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore creates a store for bucket
func NewMinIOStore(cfg MinIOConfig, bucket string) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.Token),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStore{client: client, bucket: bucket}, nil
}

func (s *MinIOStore) Name() string { return "minio://" + s.bucket }

// Read downloads an object
func (s *MinIOStore) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap(key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrap(key, err)
	}
	return data, nil
}

// List lists objects recursively
func (s *MinIOStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    dirPrefix(prefix),
		Recursive: true,
	})

	objects := make([]ObjectInfo, 0)
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:     object.Key,
			Size:    object.Size,
			ModTime: object.LastModified,
		})
	}

	sortObjects(objects)
	return objects, nil
}

// Exists stats an object
func (s *MinIOStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat object: %w", err)
}

func (s *MinIOStore) wrap(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return notFound(key)
	}
	return fmt.Errorf("failed to get object: %w", err)
}
