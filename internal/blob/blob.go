// Package blob stores uploaded teaching materials on the local filesystem or
// in a MinIO/S3 bucket.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Store accepts a named blob at a path and returns a handle for it.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, name string) error
}

// Config selects and configures a backend.
type Config struct {
	Backend        string // "local" or "minio"
	LocalDir       string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSecure    bool
}

// Open builds the backend named in cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.LocalDir), nil
	case "minio":
		return NewMinio(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

// MaterialPath returns the object path for an uploaded material:
// materials/<unix-ms>_<base name>.
func MaterialPath(filename string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "upload"
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, base)
	return fmt.Sprintf("materials/%d_%s", now.UnixMilli(), base)
}
