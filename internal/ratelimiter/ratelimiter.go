package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces commands sent to an instrument using a token bucket.
//
// Many instruments (especially GPIB devices behind a LAN gateway) drop or
// garble commands sent back to back. A RateLimiter bounds the sustained
// command rate while still allowing a short burst, so scripted sessions
// can be replayed without hand-tuned sleeps.
//
// A nil *RateLimiter is valid and never waits; New returns nil for a zero
// rate.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing commandsPerSecond sustained commands
// with bursts of up to burst.
//
// Parameters:
//   - commandsPerSecond: sustained rate; 0 disables pacing (returns nil)
//   - burst: bucket capacity; values below 1 are raised to 1
//
// Example:
//
//	// At most 20 commands/s, 5 back to back
//	limiter := New(20, 5)
func New(commandsPerSecond float64, burst int) *RateLimiter {
	if commandsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(commandsPerSecond), burst),
	}
}

// Allow reports whether a command may be sent now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a command may be sent or ctx is done.
//
// Returns:
//   - nil if a token was acquired
//   - an error if ctx was cancelled, or its deadline would expire first
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. A zero rate is ignored; build a new
// limiter (or use nil) to disable pacing.
func (r *RateLimiter) SetLimit(commandsPerSecond float64) {
	if r == nil || commandsPerSecond <= 0 {
		return
	}
	r.limiter.SetLimit(rate.Limit(commandsPerSecond))
}

// Tokens returns the number of commands that could be sent immediately.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	return r.limiter.Tokens()
}
