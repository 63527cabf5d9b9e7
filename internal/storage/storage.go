// Package storage persists generated audio and returns its public URL.
package storage

import (
	"context"
	"fmt"

	"feedcast/internal/config"
)

// Storage is implemented by every audio backend.
type Storage interface {
	// Put stores data under key and returns the URL listeners fetch it from.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, baseURL string) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.LocalPath, baseURL)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
