// Package nonce provides replay protection for signed payment intents.
//
// Every intent carries a client-chosen nonce. A nonce is consumed exactly
// once: the first registration wins and every later attempt fails with
// ErrNonceUsed. Consumed nonces are retained for a bounded period and then
// swept, so the set stays small without reopening the replay window for
// live intents (an intent's expiry is far shorter than the retention).
package nonce

import (
	"context"
	"errors"
	"time"
)

// ErrNonceUsed is returned when a nonce has already been consumed.
var ErrNonceUsed = errors.New("nonce already used")

// Store persists consumed nonces.
type Store interface {
	// Register consumes the nonce. It must be atomic: of N concurrent calls
	// with the same nonce, exactly one succeeds and the rest return
	// ErrNonceUsed.
	Register(ctx context.Context, nonce string, seenAt time.Time) error

	// Sweep removes nonces consumed before the cutoff and reports how many
	// were removed.
	Sweep(ctx context.Context, before time.Time) (int, error)
}

// Retention defaults.
const (
	DefaultRetention  = time.Hour
	DefaultSweepEvery = 1000
)
