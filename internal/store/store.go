// Package store provides the key-value persistence used by the HTTP cache
// gateway. Values are opaque strings; callers own their encoding.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Store is a durable string key-value store.
type Store interface {
	// Get returns the value for key. ok is false on a miss; err is
	// reserved for backend failures.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Options configures New.
type Options struct {
	Backend       string
	FilePath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// New builds the store selected by opts.Backend.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(opts.FilePath)
	case BackendRedis:
		return NewRedis(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
