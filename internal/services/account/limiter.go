package account

import (
	"sync"
	"time"
)

const (
	defaultMaxLoginFailures = 5
	defaultFailureWindow    = 10 * time.Minute
	defaultBlockDuration    = 15 * time.Minute
	limiterCleanupEvery     = 64
)

// attemptLimiter blocks a key after too many failures inside a window.
type attemptLimiter struct {
	mu          sync.Mutex
	entries     map[string]attemptEntry
	maxFailures int
	window      time.Duration
	blockFor    time.Duration
	staleAfter  time.Duration
	ops         int
}

type attemptEntry struct {
	failures     int
	firstFailure time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

func newAttemptLimiter(maxFailures int, window, blockFor time.Duration) *attemptLimiter {
	if maxFailures <= 0 || window <= 0 || blockFor <= 0 {
		return nil
	}
	staleAfter := 2 * max(window, blockFor)
	if staleAfter < 10*time.Minute {
		staleAfter = 10 * time.Minute
	}
	return &attemptLimiter{
		entries:     make(map[string]attemptEntry),
		maxFailures: maxFailures,
		window:      window,
		blockFor:    blockFor,
		staleAfter:  staleAfter,
	}
}

// allow reports whether key may attempt a login at now.
func (l *attemptLimiter) allow(key string, now time.Time) bool {
	if l == nil || key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[key]
	entry.lastSeen = now
	blocked := !entry.blockedUntil.IsZero() && now.Before(entry.blockedUntil)
	if !blocked {
		entry.blockedUntil = time.Time{}
		if !entry.firstFailure.IsZero() && now.Sub(entry.firstFailure) > l.window {
			entry.failures = 0
			entry.firstFailure = time.Time{}
		}
	}
	l.entries[key] = entry
	l.sweepLocked(now)
	return !blocked
}

func (l *attemptLimiter) fail(key string, now time.Time) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[key]
	if entry.firstFailure.IsZero() || now.Sub(entry.firstFailure) > l.window {
		entry.failures = 0
		entry.firstFailure = now
	}
	entry.failures++
	if entry.failures >= l.maxFailures {
		entry.blockedUntil = now.Add(l.blockFor)
		entry.failures = 0
		entry.firstFailure = time.Time{}
	}
	entry.lastSeen = now
	l.entries[key] = entry
	l.sweepLocked(now)
}

func (l *attemptLimiter) reset(key string) {
	if l == nil || key == "" {
		return
	}
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

func (l *attemptLimiter) sweepLocked(now time.Time) {
	l.ops++
	if l.ops%limiterCleanupEvery != 0 {
		return
	}
	for key, entry := range l.entries {
		if entry.lastSeen.IsZero() || now.Sub(entry.lastSeen) > l.staleAfter {
			delete(l.entries, key)
		}
	}
}
