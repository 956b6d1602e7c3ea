// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers register
// hooks at startup to receive events about render pipeline execution and
// cache behavior.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetRenderHooks(&myRenderHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Render().OnRenderStart(ctx, fingerprint)
//	// ... render ...
//	observability.Render().OnRenderComplete(ctx, fingerprint, format, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Render Hooks
// =============================================================================

// RenderHooks receives events from the render pipeline.
type RenderHooks interface {
	// OnDecode records a slug decode, with the number of text segments.
	OnDecode(ctx context.Context, segments int, err error)

	// OnResolve records a template resolution.
	OnResolve(ctx context.Context, templateID string, err error)

	// Render events cover layout plus rasterization of one fingerprint.
	OnRenderStart(ctx context.Context, fingerprint string)
	OnRenderComplete(ctx context.Context, fingerprint, format string, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from the render cache.
type CacheHooks interface {
	// OnHit records a cache hit for a fingerprint.
	OnHit(ctx context.Context, fingerprint string)

	// OnMiss records a cache miss.
	OnMiss(ctx context.Context, fingerprint string)

	// OnSet records a cache write.
	OnSet(ctx context.Context, fingerprint string, size int)

	// OnBackendError records a backend failure that degraded the store
	// to direct rendering.
	OnBackendError(ctx context.Context, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopRenderHooks is a no-op implementation of RenderHooks.
type NoopRenderHooks struct{}

func (NoopRenderHooks) OnDecode(context.Context, int, error)     {}
func (NoopRenderHooks) OnResolve(context.Context, string, error) {}
func (NoopRenderHooks) OnRenderStart(context.Context, string)    {}
func (NoopRenderHooks) OnRenderComplete(context.Context, string, string, time.Duration, error) {
}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnHit(context.Context, string)         {}
func (NoopCacheHooks) OnMiss(context.Context, string)        {}
func (NoopCacheHooks) OnSet(context.Context, string, int)    {}
func (NoopCacheHooks) OnBackendError(context.Context, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	renderHooks RenderHooks = NoopRenderHooks{}
	cacheHooks  CacheHooks  = NoopCacheHooks{}
	hooksMu     sync.RWMutex
)

// SetRenderHooks registers custom render hooks.
// This should be called once at application startup before any renders.
func SetRenderHooks(h RenderHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		renderHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache use.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Render returns the registered render hooks.
func Render() RenderHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return renderHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	renderHooks = NoopRenderHooks{}
	cacheHooks = NoopCacheHooks{}
}
