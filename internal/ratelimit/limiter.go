// Package ratelimit is the request-level abuse backstop in front of the
// quota endpoints. It applies token-bucket limits per caller (anonymous
// callers by client IP, authenticated callers by credential) and sets
// standard rate limit response headers. It is deliberately distinct from the
// daily generation quota: this layer bounds request frequency, the quota
// service bounds generations.
package ratelimit

import "time"

// Limiter defines the rate limiting contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Allow checks whether a request identified by key should be allowed.
	// Returns whether the request is allowed and rate information for
	// populating response headers.
	Allow(key string) (allowed bool, info Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per window
	Remaining  int           // Approximate tokens remaining
	ResetAt    time.Time     // When the bucket will be full again
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}
