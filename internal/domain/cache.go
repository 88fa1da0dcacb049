package domain

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss indicates no cached entry was found.
var ErrCacheMiss = errors.New("cache miss")

// InvocationCache stores completed non-streaming results keyed by the exact
// request shape. Streaming invocations never touch the cache.
type InvocationCache interface {
	// Get retrieves a cached result for an identical previous request.
	Get(ctx context.Context, req *InvokeRequest) (*Result, error)

	// Set stores a completed result.
	Set(ctx context.Context, req *InvokeRequest, res *Result, ttl time.Duration) error
}
