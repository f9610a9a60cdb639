// Package kv provides the durable string-valued key/value storage the
// offline queue is persisted in.
package kv

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when the key has never been set or was removed.
var ErrNotFound = errors.New("kv: key not found")

// Store is durable key/value storage. Set must not return before the value
// survives a process kill.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Lister is implemented by stores that can enumerate keys by prefix.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}
