package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedScheme is returned for locations no backend is registered for.
var ErrUnsupportedScheme = errors.New("unsupported storage scheme")

// Config groups the per-backend settings
type Config struct {
	S3    S3Config    `mapstructure:"s3"`
	MinIO MinIOConfig `mapstructure:"minio"`
	Azure AzureConfig `mapstructure:"azure"`
	HDFS  HDFSConfig  `mapstructure:"hdfs"`
	OSS   OSSConfig   `mapstructure:"oss"`
	COS   COSConfig   `mapstructure:"cos"`
}

// Factory creates a store for one bucket, container or NameNode.
type Factory func(ctx context.Context, bucket string) (ObjectStore, error)

// Location is a parsed table location
type Location struct {
	Scheme string
	Bucket string
	Root   string
}

// Registry maps location schemes to store factories and keeps one store
// per (scheme, bucket).
type Registry struct {
	factories map[string]Factory
	stores    map[string]ObjectStore
	mutex     sync.RWMutex
}

// NewRegistry creates a registry serving local paths only
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		stores:    make(map[string]ObjectStore),
	}
	local := NewLocalStore()
	r.Register("file", func(context.Context, string) (ObjectStore, error) {
		return local, nil
	})
	return r
}

// NewRegistryFromConfig registers every cloud backend. Clients are built
// lazily on first use, so unconfigured backends only fail when used.
func NewRegistryFromConfig(cfg Config) *Registry {
	r := NewRegistry()
	r.Register("s3", func(ctx context.Context, bucket string) (ObjectStore, error) {
		return NewS3Store(ctx, cfg.S3, bucket)
	})
	r.Register("minio", func(_ context.Context, bucket string) (ObjectStore, error) {
		return NewMinIOStore(cfg.MinIO, bucket)
	})
	r.Register("az", func(_ context.Context, container string) (ObjectStore, error) {
		return NewAzureStore(cfg.Azure, container)
	})
	r.Register("hdfs", func(_ context.Context, address string) (ObjectStore, error) {
		return NewHDFSStore(cfg.HDFS, address)
	})
	r.Register("oss", func(_ context.Context, bucket string) (ObjectStore, error) {
		return NewOSSStore(cfg.OSS, bucket)
	})
	r.Register("cos", func(_ context.Context, bucket string) (ObjectStore, error) {
		return NewCOSStore(cfg.COS, bucket)
	})
	return r
}

// Register adds or replaces the factory for scheme
func (r *Registry) Register(scheme string, factory Factory) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.factories[scheme] = factory
}

// Supported returns the registered schemes
func (r *Registry) Supported() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	schemes := make([]string, 0, len(r.factories))
	for scheme := range r.factories {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// Open returns the store serving location and the table root key inside it.
func (r *Registry) Open(ctx context.Context, location string) (ObjectStore, string, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, "", err
	}

	cacheKey := loc.Scheme + "://" + loc.Bucket

	r.mutex.RLock()
	store, ok := r.stores[cacheKey]
	factory, registered := r.factories[loc.Scheme]
	r.mutex.RUnlock()
	if ok {
		return store, loc.Root, nil
	}
	if !registered {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, loc.Scheme)
	}

	store, err = factory(ctx, loc.Bucket)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s store: %w", loc.Scheme, err)
	}

	r.mutex.Lock()
	if existing, ok := r.stores[cacheKey]; ok {
		store = existing
	} else {
		r.stores[cacheKey] = store
	}
	r.mutex.Unlock()

	return store, loc.Root, nil
}

// ParseLocation splits a table location into scheme, bucket and root.
// Plain paths are local and made absolute.
func ParseLocation(location string) (Location, error) {
	if strings.TrimSpace(location) == "" {
		return Location{}, fmt.Errorf("empty table location")
	}

	if !strings.Contains(location, "://") {
		abs, err := filepath.Abs(location)
		if err != nil {
			return Location{}, fmt.Errorf("failed to resolve %s: %w", location, err)
		}
		return Location{Scheme: "file", Root: filepath.ToSlash(abs)}, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return Location{}, fmt.Errorf("invalid table location %q: %w", location, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "file":
		return Location{Scheme: "file", Root: strings.TrimSuffix(u.Path, "/")}, nil
	case "s3a", "s3n":
		scheme = "s3"
	case "abfs", "abfss", "wasb", "wasbs", "azure":
		scheme = "az"
	}

	bucket := u.Host
	if scheme == "az" {
		// container@account.dfs.core.windows.net
		if at := strings.Index(bucket, "@"); at >= 0 {
			bucket = bucket[:at]
		} else if u.User != nil {
			bucket = u.User.Username()
		}
	}
	if bucket == "" {
		return Location{}, fmt.Errorf("invalid table location %q: missing bucket", location)
	}

	return Location{
		Scheme: scheme,
		Bucket: bucket,
		Root:   strings.Trim(u.Path, "/"),
	}, nil
}
