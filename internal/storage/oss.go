package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// OSSConfig holds Alibaba Cloud OSS configuration
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"` // e.g. oss-cn-hangzhou.aliyuncs.com
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	SecurityToken   string `mapstructure:"security_token"`
}

// OSSStore reads objects from one OSS bucket
type OSSStore struct {
	bucket *oss.Bucket
	name   string
}

// NewOSSStore creates a store for bucketName
func NewOSSStore(cfg OSSConfig, bucketName string) (*OSSStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	var client *oss.Client
	var err error
	if cfg.SecurityToken != "" {
		client, err = oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret, oss.SecurityToken(cfg.SecurityToken))
	} else {
		client, err = oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &OSSStore{bucket: bucket, name: "oss://" + bucketName}, nil
}

func (s *OSSStore) Name() string { return s.name }

// Read downloads an object
func (s *OSSStore) Read(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		if isOSSNotFound(err) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}
	return data, nil
}

// List pages through ListObjects using markers
func (s *OSSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects := make([]ObjectInfo, 0)
	marker := ""
	for {
		lor, err := s.bucket.ListObjects(oss.Prefix(dirPrefix(prefix)), oss.Marker(marker), oss.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range lor.Objects {
			objects = append(objects, ObjectInfo{
				Key:     obj.Key,
				Size:    obj.Size,
				ModTime: obj.LastModified,
			})
		}
		if !lor.IsTruncated {
			break
		}
		marker = lor.NextMarker
	}

	sortObjects(objects)
	return objects, nil
}

// Exists checks object existence
func (s *OSSStore) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := s.bucket.IsObjectExist(key, oss.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return exists, nil
}

func isOSSNotFound(err error) bool {
	serviceErr, ok := err.(oss.ServiceError)
	return ok && serviceErr.StatusCode == http.StatusNotFound
}
