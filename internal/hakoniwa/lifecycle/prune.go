package lifecycle

import (
	"sync"
	"time"

	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/config"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/registry"
)

// PruneWindow is the minimum interval between prune passes. Trigger calls
// inside the window are no-ops, not queued.
const PruneWindow = 5 * time.Minute

const (
	msPerHour = 3_600_000
	msPerDay  = 86_400_000
)

// PruneState rate-limits prune passes across arbitrarily many trigger call
// sites. The timestamp records attempts, not completions, so a slow or
// failing pass cannot cause overlapping re-entrant runs.
type PruneState struct {
	mu          sync.Mutex
	lastAttempt time.Time
}

// TryBegin performs a guarded check-and-set: it returns true and records now
// as the last attempt when at least window has elapsed since the previous
// attempt, false otherwise.
func (s *PruneState) TryBegin(now time.Time, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < window {
		return false
	}
	s.lastAttempt = now
	return true
}

// ShouldPrune decides whether an entry is eligible for eviction at nowMs.
// Either rule alone is sufficient; thresholds are strict, so an entry
// sitting exactly on the boundary survives.
func ShouldPrune(policy config.Prune, nowMs int64, entry registry.Entry) bool {
	if policy.Disabled() {
		return false
	}
	if policy.IdleHours > 0 && nowMs-entry.LastUsedAtMs > int64(policy.IdleHours)*msPerHour {
		return true
	}
	if policy.MaxAgeDays > 0 && nowMs-entry.CreatedAtMs > int64(policy.MaxAgeDays)*msPerDay {
		return true
	}
	return false
}
