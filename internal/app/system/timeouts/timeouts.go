// internal/app/system/timeouts/timeouts.go

// Package timeouts provides centralized timeout values for engine
// operations.
//
// These timeouts are used with context.WithTimeout around store and
// identity-provider calls so no operation in the engine can hang past the
// caller's request lifetime. Using centralized values keeps the engine,
// the HTTP surface, and health checks consistent.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks and connectivity verification
//   - Short: single-document reads (membership by id, subscription row)
//   - Medium: writes and multi-step reads (create membership, resolve feature)
//   - Provider: calls to the external identity provider
//   - Batch: bulk invite imports processed in one request
package timeouts

import (
	"sync"
	"time"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing     = 2 * time.Second
	DefaultShort    = 5 * time.Second
	DefaultMedium   = 10 * time.Second
	DefaultProvider = 15 * time.Second
	DefaultBatch    = 60 * time.Second
)

// mu protects all timeout values from concurrent access.
var mu sync.RWMutex

var (
	ping     = DefaultPing
	short    = DefaultShort
	medium   = DefaultMedium
	provider = DefaultProvider
	batch    = DefaultBatch
)

// Ping returns the timeout for health checks and connectivity verification.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the timeout for simple single-document reads.
// Examples: get membership by id, lookup subscription state.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Medium returns the timeout for writes and multi-step reads.
// Examples: create membership, resolve-or-create household, upsert override.
func Medium() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return medium
}

// Provider returns the timeout for external identity-provider calls.
// Provider failures past this deadline surface as retryable
// identity-provider-unavailable errors rather than hanging the request.
func Provider() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return provider
}

// Batch returns the timeout for bulk invite imports.
func Batch() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return batch
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping     time.Duration
	Short    time.Duration
	Medium   time.Duration
	Provider time.Duration
	Batch    time.Duration
}

// Configure sets custom timeout values. Zero values in the config are
// ignored, keeping the current (or default) values. Called during
// application startup before handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Medium > 0 {
		medium = cfg.Medium
	}
	if cfg.Provider > 0 {
		provider = cfg.Provider
	}
	if cfg.Batch > 0 {
		batch = cfg.Batch
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	short = DefaultShort
	medium = DefaultMedium
	provider = DefaultProvider
	batch = DefaultBatch
}
