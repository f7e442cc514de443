// Package storage provides the persistence backends a preference store
// writes documents to.
//
// Every backend implements Adapter and treats values as opaque bytes. A
// missing key is not an error: Get returns nil, nil and Remove succeeds.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrClosed is returned by operations on a closed adapter.
var ErrClosed = errors.New("storage closed")

// ErrInvalidKey is returned for keys a backend cannot store.
var ErrInvalidKey = errors.New("invalid storage key")

// Adapter is the persistence contract.
type Adapter interface {
	// Get returns the value for key, or nil, nil if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear deletes every key owned by the adapter.
	Clear(ctx context.Context) error

	// Keys returns every stored key in sorted order.
	Keys(ctx context.Context) ([]string, error)
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend for Open.
type Options struct {
	// Backend is one of the Backend constants.
	Backend string
	// Path is the directory (file, badger) or database file (sqlite).
	Path string
	// RedisURL is a redis:// URL (redis).
	RedisURL string
	// Prefix namespaces keys in shared backends (badger, redis).
	Prefix string
}

// Open creates the adapter described by opts. The caller closes the result
// with Close when it is done.
func Open(ctx context.Context, opts Options) (Adapter, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(opts.Path)
	case BackendBadger:
		return NewBadger(BadgerConfig{Path: opts.Path, Prefix: opts.Prefix})
	case BackendSQLite:
		return NewSQLite(ctx, opts.Path)
	case BackendRedis:
		return NewRedis(ctx, RedisConfig{URL: opts.RedisURL, Prefix: opts.Prefix})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// Close releases an adapter's resources if it holds any.
func Close(a Adapter) error {
	if c, ok := a.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	return nil
}
