package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or the
	// context is cancelled
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// Pacer spaces requests by a fixed minimum interval. It wraps a
// golang.org/x/time rate.Limiter with a burst of one, so the first
// request goes through immediately and every later one waits out the
// remainder of the interval.
type Pacer struct {
	interval time.Duration
	limiter  *rate.Limiter
	mu       sync.Mutex
}

// NewPacer creates a pacer that allows one request per interval
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Allow reports whether a request may proceed right now
func (p *Pacer) Allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limiter.Allow()
}

// Wait blocks until the pacing interval has elapsed since the last request
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	l := p.limiter
	p.mu.Unlock()
	return l.Wait(ctx)
}

// Reset discards pacing state so the next request proceeds immediately
func (p *Pacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiter = rate.NewLimiter(rate.Every(p.interval), 1)
}

// SlidingWindow implements a sliding window rate limiter. It caps the
// number of requests inside a rolling window, which matches how the
// Unsplash API accounts its hourly quota.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.cleanOldRequests(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}

	return false
}

// Wait blocks until a request is allowed or the context is cancelled
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		var timeToWait time.Duration
		if len(sw.requests) > 0 {
			oldestRequest := sw.requests[0]
			timeToWait = sw.windowSize - time.Since(oldestRequest)
		}
		sw.mu.Unlock()

		if timeToWait <= 0 {
			// Small sleep to prevent busy waiting
			timeToWait = 100 * time.Millisecond
		}

		timer := time.NewTimer(timeToWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && sw.requests[i].Before(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}

// Combined chains multiple limiters; a request proceeds only when every
// limiter admits it.
type Combined struct {
	limiters []Limiter
}

// NewCombined creates a limiter that enforces all of the given limiters
func NewCombined(limiters ...Limiter) *Combined {
	return &Combined{limiters: limiters}
}

// Allow reports whether every underlying limiter admits the request
func (c *Combined) Allow() bool {
	for _, l := range c.limiters {
		if !l.Allow() {
			return false
		}
	}
	return true
}

// Wait blocks on each limiter in turn
func (c *Combined) Wait(ctx context.Context) error {
	for _, l := range c.limiters {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Reset resets every underlying limiter
func (c *Combined) Reset() {
	for _, l := range c.limiters {
		l.Reset()
	}
}
