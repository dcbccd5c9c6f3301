package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local writes blobs under a directory.
type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	if dir == "" {
		dir = "uploads"
	}
	return &Local{dir: dir}
}

func (l *Local) resolve(name string) (string, error) {
	dst := filepath.Join(l.dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(l.dir, dst)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return dst, nil
}

func (l *Local) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	dst, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return "/uploads/" + filepath.ToSlash(name), nil
}

func (l *Local) Delete(_ context.Context, name string) error {
	dst, err := l.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(dst)
}
