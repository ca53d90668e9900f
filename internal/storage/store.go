// Package storage gives the Delta reader a uniform view over the places a
// table can live: the local filesystem, S3, MinIO, Azure Blob, HDFS,
// Alibaba OSS and Tencent COS.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// ErrObjectNotFound is wrapped by every backend when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a listed object
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// ObjectStore is the read-only surface the reader needs from a backend.
// Keys are slash separated.
type ObjectStore interface {
	// Name identifies the backend, e.g. "s3://bucket".
	Name() string
	// Read returns the full content of key.
	Read(ctx context.Context, key string) ([]byte, error)
	// List returns every object below prefix, recursively, sorted by key.
	// A prefix with nothing below it yields an empty list.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// Join joins key elements with slashes.
func Join(root string, elem ...string) string {
	return path.Join(append([]string{root}, elem...)...)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
}

// dirPrefix makes sure a listing prefix only matches below a directory.
func dirPrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

func sortObjects(objects []ObjectInfo) {
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
}
