// Package abuse provides failure tracking and client blocking for the payguard API.
//
// Flow:
//  1. Every inbound request is checked against per-IP and per-user block state
//  2. Failed requests (4xx/5xx, rate-limit rejections, panics) increment counters
//  3. A counter crossing the threshold within the window auto-blocks that key
//  4. Explicit blocks expire via a scheduled unblock; the latest deadline wins
package abuse

import (
	"time"
)

// Identity is the client identity derived from a request. It is never stored
// as a unit; IP and user are tracked independently.
type Identity struct {
	IP     string
	UserID string // empty if no trusted user header was present
}

// Entry tracks failures for a single key (an IP or a user id).
type Entry struct {
	Count       int
	WindowStart time.Time
	Blocked     bool
}

// Config configures the tracker.
type Config struct {
	// Threshold is the failure count that triggers an auto-block.
	Threshold int
	// Window is how long failures accumulate before the count resets.
	Window time.Duration
	// BlockDuration is the default duration for explicit blocks.
	BlockDuration time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Threshold:     50,
		Window:        15 * time.Minute,
		BlockDuration: time.Hour,
	}
}

// Block reasons returned by IsBlocked.
const (
	ReasonIPBlocked   = "IP address is blocked due to abuse"
	ReasonUserBlocked = "User account is blocked due to abuse"
)
