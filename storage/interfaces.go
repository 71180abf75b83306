package storage

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by ContentCache.Read when no entry exists for a key.
var ErrCacheMiss = errors.New("cache: miss")

// ContentCache maps a logical request key to a previously fetched body.
// Entries are written once and never modified; there is no expiry.
type ContentCache interface {
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, body []byte) error
}
