package rendercache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/memebox/memebox/pkg/observability"
)

// Result is a rendered output: encoded image bytes, their content type,
// and the fingerprint that identifies the render. Results are immutable
// and may be shared by every caller that coalesced on the fingerprint.
type Result struct {
	Bytes       []byte `json:"bytes"`
	ContentType string `json:"content_type"`
	Fingerprint string `json:"fingerprint"`
}

// RenderFunc produces a Result on a cache miss.
type RenderFunc func(ctx context.Context) (*Result, error)

// Store is the content-addressed render cache with single-flight
// coalescing. The singleflight group guarantees at most one concurrent
// execution of the render function per fingerprint; the lock inside it
// covers only the check/insert step, never the render itself, so
// distinct fingerprints render fully in parallel.
type Store struct {
	backend Cache
	ttl     time.Duration
	group   singleflight.Group
	logger  *log.Logger
}

// NewStore creates a store over the given backend. A nil backend
// disables persistence (coalescing still applies).
func NewStore(backend Cache, ttl time.Duration, logger *log.Logger) *Store {
	if backend == nil {
		backend = NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{backend: backend, ttl: ttl, logger: logger}
}

// GetOrRender returns the cached result for fingerprint or executes fn
// to produce it. Concurrent callers with the same fingerprint share one
// execution and one result (or one failure; failures are not cached).
//
// When skipCache is set, fn runs directly without consulting or
// populating the backend. A failing backend is logged and degrades to a
// direct render; it never fails the request.
//
// If ctx ends while the shared execution is still running, the caller's
// wait is abandoned with ctx.Err() but the execution continues on a
// detached context and may still populate the cache for future callers.
func (s *Store) GetOrRender(ctx context.Context, fingerprint string, skipCache bool, fn RenderFunc) (*Result, error) {
	if skipCache {
		return fn(ctx)
	}

	ch := s.group.DoChan(fingerprint, func() (any, error) {
		// Detached: the shared execution must not die with the first
		// caller that gives up waiting.
		return s.lookupOrRender(context.WithoutCancel(ctx), fingerprint, fn)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookupOrRender is the shared execution body: backend lookup, render on
// miss, best-effort store of successes.
func (s *Store) lookupOrRender(ctx context.Context, fingerprint string, fn RenderFunc) (*Result, error) {
	data, hit, err := s.backend.Get(ctx, fingerprint)
	if err != nil {
		// Backend trouble is a degraded mode, not a request failure.
		s.logger.Warn("render cache backend unavailable, rendering directly",
			"fingerprint", fingerprint, "err", err)
		observability.Cache().OnBackendError(ctx, err)
	} else if hit {
		result, err := decodeResult(data)
		if err == nil {
			observability.Cache().OnHit(ctx, fingerprint)
			return result, nil
		}
		// Corrupt entry: drop it and rerender.
		_ = s.backend.Delete(ctx, fingerprint)
	}
	observability.Cache().OnMiss(ctx, fingerprint)

	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := s.backend.Set(ctx, fingerprint, data, s.ttl); err != nil {
			s.logger.Warn("render cache store failed", "fingerprint", fingerprint, "err", err)
		} else {
			observability.Cache().OnSet(ctx, fingerprint, len(data))
		}
	}
	return result, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// decodeResult deserializes a cached entry into a fresh Result, so
// eviction of the backend entry can never touch bytes a caller already
// holds.
func decodeResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
