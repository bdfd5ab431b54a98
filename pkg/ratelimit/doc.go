// Package ratelimit provides rate limiting for the Unsplash API client.
//
// The Unsplash API accounts requests against an hourly quota, and the
// client additionally spaces consecutive requests by a minimum interval
// to stay well clear of it.
//
// Available Implementations:
//
// Pacer:
//   - Enforces a fixed minimum interval between requests
//   - Built on golang.org/x/time rate.Limiter with a burst of one
//   - Default pacing used by the API client
//
// Sliding Window:
//   - Tracks requests within a moving time window
//   - Matches how the Unsplash hourly quota is accounted
//
// Combined:
//   - Chains limiters so every one must admit a request
//
// Interface:
//
// All rate limiters implement the Limiter interface:
//   - Allow() bool - Check if a request is allowed
//   - Wait(ctx) error - Block until a request is allowed or ctx ends
//   - Reset() - Reset the limiter state
//
// Usage:
//
//	// At most one request every two seconds
//	pacer := ratelimit.NewPacer(2 * time.Second)
//
//	// Hourly quota: 50 requests per rolling hour
//	window := ratelimit.NewSlidingWindow(50, time.Hour)
//
//	limiter := ratelimit.NewCombined(window, pacer)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//	// Proceed with request
package ratelimit
