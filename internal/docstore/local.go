package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"orcaflow/internal/util"
)

type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := util.EnsureDir(root); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve doc root: %w", err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) Fetch(ctx context.Context, path string) ([]byte, error) {
	_ = ctx
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", util.ErrMissingFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}
	return b, nil
}

func (l *Local) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_ = ctx
	_ = contentType
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := util.EnsureDir(filepath.Dir(full)); err != nil {
		return err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write document %s: %w", path, err)
	}
	return nil
}

func (l *Local) resolve(path string) (string, error) {
	full := filepath.Join(l.root, filepath.Clean("/"+path))
	if !strings.HasPrefix(full, l.root) {
		return "", fmt.Errorf("document path escapes root: %s", path)
	}
	return full, nil
}
