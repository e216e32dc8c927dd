package ratelimit

import (
	"context"
	"time"
)

const (
	refreshKey = "adsboard:ratelimit:refresh"

	// One manual refresh every 10 seconds sustained, small burst for a
	// dashboard double-click.
	refreshRate  = 0.1
	refreshBurst = 3
)

// RefreshLimiter paces the manual refresh endpoint so a dashboard cannot
// hammer the provider's token endpoint. Nil receiver means no redis: every
// request is allowed.
type RefreshLimiter struct {
	bucket *TokenBucket
}

func NewRefreshLimiter(bucket *TokenBucket) *RefreshLimiter {
	if bucket == nil {
		return nil
	}
	return &RefreshLimiter{bucket: bucket}
}

// Allow reports whether a manual refresh may proceed now. Limiter failures
// fail open: a broken redis must not block token maintenance.
func (l *RefreshLimiter) Allow(ctx context.Context) (bool, time.Duration) {
	if l == nil || l.bucket == nil {
		return true, 0
	}
	res, err := l.bucket.Allow(ctx, refreshKey, refreshRate, refreshBurst)
	if err != nil {
		return true, 0
	}
	return res.Allowed, res.RetryAfter
}
