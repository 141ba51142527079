// Package archive stores schedule snapshots and their manifests as objects
// on a local directory tree or an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

const ManifestSuffix = ".manifest.json"

var ErrNotFound = errors.New("archive: object not found")

type ObjectInfo struct {
	Key        string
	Size       int64
	Modified   time.Time
	ETag       string
	Metadata   map[string]string
	IsManifest bool
}

type Backend interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

func ManifestKey(objectKey string) string {
	return objectKey + ManifestSuffix
}

func IsManifest(key string) bool {
	return strings.HasSuffix(key, ManifestSuffix)
}
