package nonce

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/payguard/internal/metrics"
)

// Cache wraps a Store with retention-based sweeping. Sweeps are triggered by
// registration volume rather than a timer: every sweepEvery successful
// registrations, one sweep runs inline on the registering goroutine.
type Cache struct {
	store      Store
	retention  time.Duration
	sweepEvery uint64
	logger     *slog.Logger

	registrations atomic.Uint64
}

// NewCache creates a cache over the store. Zero retention or sweepEvery fall
// back to the defaults.
func NewCache(store Store, retention time.Duration, sweepEvery int, logger *slog.Logger) *Cache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if sweepEvery <= 0 {
		sweepEvery = DefaultSweepEvery
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:      store,
		retention:  retention,
		sweepEvery: uint64(sweepEvery),
		logger:     logger,
	}
}

// Register consumes the nonce, returning ErrNonceUsed on replay.
func (c *Cache) Register(ctx context.Context, nonce string) error {
	if err := c.store.Register(ctx, nonce, time.Now()); err != nil {
		if errors.Is(err, ErrNonceUsed) {
			metrics.NonceReplaysTotal.Inc()
		}
		return err
	}

	if c.registrations.Add(1)%c.sweepEvery == 0 {
		c.sweep(ctx)
	}
	return nil
}

func (c *Cache) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-c.retention)
	removed, err := c.store.Sweep(ctx, cutoff)
	if err != nil {
		c.logger.Warn("nonce sweep failed", "error", err)
		return
	}
	if removed > 0 {
		metrics.NoncesSweptTotal.Add(float64(removed))
		c.logger.Debug("nonce sweep", "removed", removed)
	}
}
