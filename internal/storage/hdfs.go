package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/colinmarc/hdfs/v2"
)

// HDFSConfig holds HDFS configuration
type HDFSConfig struct {
	NameNodes []string `mapstructure:"namenodes"`
	User      string   `mapstructure:"user"`
}

// HDFSStore reads files from an HDFS cluster. Keys are absolute paths.
type HDFSStore struct {
	client *hdfs.Client
	name   string
}

// NewHDFSStore connects to the configured NameNodes, or to address when
// none are configured.
func NewHDFSStore(cfg HDFSConfig, address string) (*HDFSStore, error) {
	addresses := cfg.NameNodes
	if len(addresses) == 0 && address != "" {
		addresses = []string{address}
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("at least one NameNode is required")
	}

	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses: addresses,
		User:      cfg.User,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HDFS client: %w", err)
	}

	return &HDFSStore{client: client, name: "hdfs://" + addresses[0]}, nil
}

func (s *HDFSStore) Name() string { return s.name }

// Close closes the HDFS client
func (s *HDFSStore) Close() error {
	return s.client.Close()
}

// Read reads a file
func (s *HDFSStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.ReadFile(absolute(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("failed to read HDFS file: %w", err)
	}
	return data, nil
}

// List walks the directory named by prefix
func (s *HDFSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	root := absolute(prefix)
	objects := make([]ObjectInfo, 0)

	err := s.client.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == root {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		objects = append(objects, ObjectInfo{
			Key:     p,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list HDFS files: %w", err)
	}

	sortObjects(objects)
	return objects, nil
}

// Exists stats a file
func (s *HDFSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Stat(absolute(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat HDFS file: %w", err)
}

func absolute(key string) string {
	return "/" + strings.TrimPrefix(key, "/")
}
