// Package kvcache is a small TTL key-value cache with an in-process
// default and an optional Valkey backend for multi-process deployments.
package kvcache

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("kvcache: key not found")

// Cache stores string values under string keys with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttlSeconds int64) error
	Delete(ctx context.Context, key string) error
}
