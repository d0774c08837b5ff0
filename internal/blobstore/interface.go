package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrTooLarge is returned when a payload exceeds the configured put limit.
var ErrTooLarge = errors.New("blob exceeds size limit")

// PutResult describes one persisted blob payload.
type PutResult struct {
	SHA256    string
	SizeBytes int64
	Key       string
}

// Store is the byte storage used for board files.
type Store interface {
	Put(ctx context.Context, r io.Reader, maxBytes int64) (PutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Walk calls fn for every stored blob. A non-nil error from fn stops the walk.
	Walk(ctx context.Context, fn func(PutResult) error) error
}

var _ Store = (*LocalCAS)(nil)
