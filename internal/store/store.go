package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its TTL has elapsed.
var ErrNotFound = errors.New("key not found")

// Store is a TTL key-value store for ephemeral sync-engine state: PKCE
// verifiers and rate-limit counters. Incr must be atomic so that concurrent
// rate-limit checks cannot both observe a count below the maximum and proceed;
// this is part of the contract, not an implementation detail. The memory
// implementation covers a single instance, the Redis implementation is the
// hook for multi-instance deployments.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Take returns and deletes the value for key in one step, or
	// ErrNotFound. Two concurrent Takes for the same key yield the value
	// at most once.
	Take(ctx context.Context, key string) (string, error)
	// Incr atomically increments the counter at key, creating it with ttl
	// on first increment, and returns the new count together with the
	// counter's expiry time.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Time, error)
}
