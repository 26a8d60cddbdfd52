// Package ratelimiter throttles directory opens issued by the crawler.
//
// It wraps golang.org/x/time/rate with a token bucket shared by every
// connection of a crawl, so the server sees at most the configured number
// of directory listings per second however many connections are used.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket. All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing perSecond operations per second
// with bursts of up to burst operations.
//
// perSecond <= 0 disables limiting. burst < 1 is raised to 1 so that a
// limited bucket can make progress at all.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Unlimited reports whether the limiter never delays.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Allow consumes a token if one is available right now.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Delay reports how long the caller must wait before a token is
// available, without consuming one. Poll loops use it as their timeout
// instead of sleeping.
func (r *RateLimiter) Delay() time.Duration {
	if r.Unlimited() {
		return 0
	}
	now := time.Now()
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() {
		return 0
	}
	d := res.DelayFrom(now)
	res.CancelAt(now)
	return d
}

// SetLimit changes the sustained rate. perSecond <= 0 disables limiting.
func (r *RateLimiter) SetLimit(perSecond float64) {
	if perSecond <= 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	if r.limiter.Burst() < 1 {
		r.limiter.SetBurst(1)
	}
	r.limiter.SetLimit(rate.Limit(perSecond))
}

// Tokens returns the number of tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
