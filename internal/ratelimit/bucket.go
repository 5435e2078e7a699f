// Package ratelimit implements per-team token-bucket admission for the
// rpm/tpm dimensions (spec.md §4.4), as a thin wrapper over
// golang.org/x/time/rate — its Limiter already refills based on elapsed
// wall-clock time and clamps stored tokens to its burst (capacity), which
// is exactly the bucket semantics the spec calls for.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Dimension is one of the two admission axes a team can be limited on.
type Dimension string

const (
	DimensionRPM Dimension = "rpm"
	DimensionTPM Dimension = "tpm"
)

// DefaultTokenEstimate is the pre-call TPM charge used when no more
// precise estimate (see internal/tokencount) is available.
const DefaultTokenEstimate = 100

type bucketKey struct {
	teamID    string
	dimension Dimension
}

// Limiter holds one rate.Limiter per (team, dimension), rebuilding it
// whenever the configured limit changes.
type Limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucketEntry
}

type bucketEntry struct {
	limit   int
	limiter *rate.Limiter
}

// New builds an empty Limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[bucketKey]*bucketEntry)}
}

// Consume attempts to withdraw amount units from the (teamID, dimension)
// bucket, whose capacity is limit (per-minute) and whose refill rate is
// limit/60 per second. Returns true if the withdrawal succeeded. A
// limit <= 0 means "unlimited" and always succeeds without consuming a
// bucket.
func (l *Limiter) Consume(teamID string, dimension Dimension, limit int, amount int) bool {
	if limit <= 0 {
		return true
	}
	if amount <= 0 {
		amount = 1
	}

	key := bucketKey{teamID: teamID, dimension: dimension}

	l.mu.Lock()
	entry, ok := l.buckets[key]
	if !ok || entry.limit != limit {
		entry = &bucketEntry{
			limit:   limit,
			limiter: rate.NewLimiter(rate.Limit(float64(limit)/60.0), limit),
		}
		l.buckets[key] = entry
	}
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.AllowN(time.Now(), amount)
}
