// Package blob stores pipeline artifacts behind a small S3-like interface
// with local filesystem, S3 and in-memory backends.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Driver identifies a blob storage backend
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// PutOptions specifies optional parameters for Put
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored blob
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	// Location is where the blob can be found outside this process: a file
	// path for fs, an s3:// URI for s3, empty for memory.
	Location string `json:"location,omitempty"`
}

// Store is the interface implemented by every backend. Put replaces an
// existing blob with the same key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ErrNotFound is returned by Get and Head for missing keys
var ErrNotFound = errors.New("blob: not found")

// sanitizeKey rejects empty, absolute and traversing keys
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, `\`) {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	for _, part := range strings.Split(strings.ReplaceAll(key, `\`, "/"), "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid key %q contains '..'", key)
		}
	}
	return key, nil
}

func cloneMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
