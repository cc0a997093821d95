// Package ratelimit implements the broker's per-action sliding 60-second
// window rate limiter (spec §4.4, §8).
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const window = 60 * time.Second

// exemptAction never counts against a bucket: its downstream parsed
// request is rate-limited on its own terms once translated (spec §4.4
// rule 2).
const exemptAction = "natural_language"

// Limiter guards a map of per-action sliding-window buckets behind a
// single mutex (spec §5: "single critical section per action bucket
// map").
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string][]time.Time
	def       int
	overrides map[string]int
	now       func() time.Time
}

// New builds a Limiter. def is the default per-minute limit; overrides
// supplies per-action overrides (0 disables limiting for that action).
func New(def int, overrides map[string]int) *Limiter {
	if overrides == nil {
		overrides = map[string]int{}
	}
	return &Limiter{
		buckets:   make(map[string][]time.Time),
		def:       def,
		overrides: overrides,
		now:       time.Now,
	}
}

// WithClock overrides the time source for deterministic tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow resolves the limit for action, purges expired timestamps,
// and either admits the request (recording its timestamp) or denies it.
func (l *Limiter) Allow(action string) (bool, string) {
	if action == exemptAction {
		return true, ""
	}

	limit := l.def
	if override, ok := l.overrides[action]; ok {
		limit = override
	}
	if limit == 0 {
		return true, ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	cutoff := t.Add(-window)

	bucket := l.buckets[action]
	kept := bucket[:0:0]
	for _, ts := range bucket {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		l.buckets[action] = kept
		return false, fmt.Sprintf("rate limit exceeded for action '%s'", action)
	}

	kept = append(kept, t)
	l.buckets[action] = kept
	return true, ""
}
