// Package docstore fetches and stores the raw bytes of source documents.
// Production uses S3; dev and tests use a local directory.
package docstore

import (
	"context"
	"fmt"
	"strings"

	"orcaflow/internal/config"
)

type Store interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DocBackend)) {
	case "", "local":
		return NewLocal(cfg.DocLocalRoot)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported doc backend: %s", cfg.DocBackend)
	}
}
