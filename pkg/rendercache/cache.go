// Package rendercache stores rendered meme outputs keyed by fingerprint
// and coalesces concurrent identical renders.
//
// # Architecture
//
// The package separates two concerns:
//
//   - Cache: a byte-oriented backend (in-memory LRU, file, Redis, or
//     null). Backends are interchangeable and may fail; a failing
//     backend degrades the store to direct rendering, it never fails a
//     request.
//   - Store: the single-flight layer. At most one render executes per
//     fingerprint at a time; concurrent callers with the same
//     fingerprint wait for the shared execution and receive the same
//     result. Failures are shared with waiters but never cached.
//
// Results handed out are immutable; evicting a cache entry never affects
// callers already holding its result.
package rendercache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is a byte-oriented key/value store with TTL support.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value. The bool reports whether the key was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a time-to-live. A zero ttl means the
	// backend's default retention.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
