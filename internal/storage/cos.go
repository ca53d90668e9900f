package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// COSConfig holds Tencent Cloud COS configuration
type COSConfig struct {
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"` // e.g. ap-guangzhou
	HTTPS     bool   `mapstructure:"https"`
}

// COSStore reads objects from one COS bucket
type COSStore struct {
	client *cos.Client
	bucket string
}

// NewCOSStore creates a store for bucket (name-appid form)
func NewCOSStore(cfg COSConfig, bucket string) (*COSStore, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	bucketURL, err := cos.NewBucketURL(bucket, cfg.Region, cfg.HTTPS)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Timeout: 30 * time.Second,
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	return &COSStore{client: client, bucket: bucket}, nil
}

func (s *COSStore) Name() string { return "cos://" + s.bucket }

// Read downloads an object
func (s *COSStore) Read(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}
	return data, nil
}

// List pages through bucket listings using markers
func (s *COSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects := make([]ObjectInfo, 0)
	opts := &cos.BucketGetOptions{Prefix: dirPrefix(prefix)}
	for {
		resp, _, err := s.client.Bucket.Get(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range resp.Contents {
			modTime, _ := time.Parse(time.RFC3339, obj.LastModified)
			objects = append(objects, ObjectInfo{
				Key:     obj.Key,
				Size:    int64(obj.Size),
				ModTime: modTime,
			})
		}
		if !resp.IsTruncated {
			break
		}
		opts.Marker = resp.NextMarker
	}

	sortObjects(objects)
	return objects, nil
}

// Exists issues a HEAD request
func (s *COSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Object.Head(ctx, key, nil)
	if err == nil {
		return true, nil
	}
	if cos.IsNotFoundError(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object: %w", err)
}
