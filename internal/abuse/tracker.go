package abuse

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/payguard/internal/metrics"
)

// Tracker holds process-wide abuse state. Entries are created lazily on first
// failure and live for the process lifetime; durable tracking belongs in an
// external TTL store.
type Tracker struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	byIP   map[string]*Entry
	byUser map[string]*Entry

	// Scheduled unblocks, keyed like the entry maps. Replacing a timer
	// cancels the previous one so only the latest deadline fires.
	ipTimers   map[string]*unblockTimer
	userTimers map[string]*unblockTimer
}

type unblockTimer struct {
	timer    *time.Timer
	deadline time.Time
}

// NewTracker creates a tracker with the given thresholds.
func NewTracker(cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:        cfg,
		logger:     logger,
		byIP:       make(map[string]*Entry),
		byUser:     make(map[string]*Entry),
		ipTimers:   make(map[string]*unblockTimer),
		userTimers: make(map[string]*unblockTimer),
	}
}

// RecordFailure counts a failed request against the identity's IP and, if
// present, its user id. Crossing the threshold blocks the key. This is
// telemetry, not control flow: it never returns an error.
func (t *Tracker) RecordFailure(id Identity, reason string) {
	now := time.Now()

	t.mu.Lock()
	ipCount := t.recordLocked(t.byIP, id.IP, now, "ip")
	userCount := 0
	if id.UserID != "" {
		userCount = t.recordLocked(t.byUser, id.UserID, now, "user")
	}
	t.mu.Unlock()

	metrics.AbuseFailuresTotal.WithLabelValues(reason).Inc()

	t.logger.Warn("abuse tracked",
		"ip", id.IP,
		"user_id", id.UserID,
		"reason", reason,
		"ip_count", ipCount,
		"user_count", userCount,
	)
}

// recordLocked applies the window-reset rule, increments, and auto-blocks.
// Caller must hold t.mu. Returns the updated count.
func (t *Tracker) recordLocked(m map[string]*Entry, key string, now time.Time, kind string) int {
	e, ok := m[key]
	if !ok {
		e = &Entry{WindowStart: now}
		m[key] = e
	}

	if now.Sub(e.WindowStart) > t.cfg.Window {
		e.Count = 0
		e.WindowStart = now
	}

	e.Count++

	if e.Count >= t.cfg.Threshold && !e.Blocked {
		e.Blocked = true
		metrics.AbuseAutoBlocksTotal.WithLabelValues(kind).Inc()
		t.logger.Warn("auto blocked", "kind", kind, "key", key, "count", e.Count)
	}

	return e.Count
}

// IsBlocked reports whether the identity is currently blocked, and why.
// IP and user blocks are independent: either is sufficient to deny.
func (t *Tracker) IsBlocked(id Identity) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.byIP[id.IP]; ok && e.Blocked {
		return true, ReasonIPBlocked
	}
	if id.UserID != "" {
		if e, ok := t.byUser[id.UserID]; ok && e.Blocked {
			return true, ReasonUserBlocked
		}
	}
	return false, ""
}

// Block explicitly blocks the identity's IP and user keys for the duration
// (creating entries if absent) and schedules an unblock. A newer block for
// the same key supersedes any pending unblock: the latest deadline wins.
func (t *Tracker) Block(id Identity, duration time.Duration) {
	if duration <= 0 {
		duration = t.cfg.BlockDuration
	}
	deadline := time.Now().Add(duration)

	t.mu.Lock()
	if id.IP != "" {
		t.blockLocked(t.byIP, t.ipTimers, id.IP, deadline, duration)
	}
	if id.UserID != "" {
		t.blockLocked(t.byUser, t.userTimers, id.UserID, deadline, duration)
	}
	t.mu.Unlock()

	t.logger.Warn("client blocked",
		"ip", id.IP,
		"user_id", id.UserID,
		"duration", duration,
	)
}

// blockLocked sets the blocked flag and replaces any scheduled unblock for
// the key. Caller must hold t.mu.
func (t *Tracker) blockLocked(m map[string]*Entry, timers map[string]*unblockTimer, key string, deadline time.Time, duration time.Duration) {
	e, ok := m[key]
	if !ok {
		e = &Entry{WindowStart: time.Now()}
		m[key] = e
	}
	e.Blocked = true

	if prev, ok := timers[key]; ok {
		prev.timer.Stop()
	}
	ut := &unblockTimer{deadline: deadline}
	ut.timer = time.AfterFunc(duration, func() {
		t.unblock(m, timers, key, deadline)
	})
	timers[key] = ut
}

// unblock clears the blocked flag if this timer still owns the key's deadline.
// Counts are not reset; a key past its threshold within the window would
// re-block on the next failure.
func (t *Tracker) unblock(m map[string]*Entry, timers map[string]*unblockTimer, key string, deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ut, ok := timers[key]
	if !ok || !ut.deadline.Equal(deadline) {
		// A later Block replaced this schedule; it is no longer ours to clear.
		return
	}
	delete(timers, key)

	if e, ok := m[key]; ok {
		e.Blocked = false
	}
	t.logger.Info("client unblocked", "key", key)
}

// Unblock immediately clears block state for the identity and cancels any
// scheduled unblocks.
func (t *Tracker) Unblock(id Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id.IP != "" {
		t.unblockKeyLocked(t.byIP, t.ipTimers, id.IP)
	}
	if id.UserID != "" {
		t.unblockKeyLocked(t.byUser, t.userTimers, id.UserID)
	}
}

func (t *Tracker) unblockKeyLocked(m map[string]*Entry, timers map[string]*unblockTimer, key string) {
	if ut, ok := timers[key]; ok {
		ut.timer.Stop()
		delete(timers, key)
	}
	if e, ok := m[key]; ok {
		e.Blocked = false
	}
}

// Stop cancels all scheduled unblocks. Blocked flags are left as-is; the
// tracker is in-memory so this only matters for clean shutdown.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, ut := range t.ipTimers {
		ut.timer.Stop()
		delete(t.ipTimers, key)
	}
	for key, ut := range t.userTimers {
		ut.timer.Stop()
		delete(t.userTimers, key)
	}
}

// snapshot returns a copy of the entry for a key, for tests and introspection.
func (t *Tracker) snapshot(m map[string]*Entry, key string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := m[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// IPEntry returns a copy of the tracked entry for an IP.
func (t *Tracker) IPEntry(ip string) (Entry, bool) {
	return t.snapshot(t.byIP, ip)
}

// UserEntry returns a copy of the tracked entry for a user id.
func (t *Tracker) UserEntry(userID string) (Entry, bool) {
	return t.snapshot(t.byUser, userID)
}
