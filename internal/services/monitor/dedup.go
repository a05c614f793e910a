package monitor

import (
	"fmt"
	"time"
)

// Dedup suppresses repeated observations of the same key for a bounded
// time. It lives in memory only and starts empty after a restart, so a
// duplicate alert may fire once more across restarts; that is accepted.
// Each instance is owned by exactly one watcher loop and is not safe for
// concurrent use.
type Dedup struct {
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewDedup(ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Dedup{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen reports whether the key fired within the TTL. A miss records the
// key at the current time, so the caller alerts exactly once per window.
func (d *Dedup) Seen(key string) bool {
	now := d.now()
	if last, ok := d.entries[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.entries[key] = now
	return false
}

// Prune drops entries past the TTL. Called at poll-cycle boundaries to
// keep the map bounded.
func (d *Dedup) Prune() {
	now := d.now()
	for key, last := range d.entries {
		if now.Sub(last) >= d.ttl {
			delete(d.entries, key)
		}
	}
}

// MatchKey identifies one (task, server) pairing
func MatchKey(taskID uint, serverID int) string {
	return fmt.Sprintf("hunt:%d:%d", taskID, serverID)
}

// ExpiryKey identifies one (owner, order, warning tier) pairing, so an
// expiry warning fires once per tier instead of every poll cycle
func ExpiryKey(userID uint, orderID, tierHours int) string {
	return fmt.Sprintf("expiry:%d:%d:%d", userID, orderID, tierHours)
}
