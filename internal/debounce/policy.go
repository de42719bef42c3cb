// Package debounce coalesces bursts of per-key writes into one write carrying the latest
// value. Policy holds the pure coalescing rules; Debouncer drives them with timers.
package debounce

import (
	"time"
)

// DefaultWindow is the quiet period after the last request before a key fires.
const DefaultWindow = 500 * time.Millisecond

// Entry is the armed request for one key.
type Entry[V any] struct {
	Value      V
	Due        time.Time
	Generation uint64 // Changes every time the entry is replaced
}

// Policy is a last-write-wins table of armed entries. It does no timing of its own and is
// not safe for concurrent use; callers decide when to Take.
type Policy[K comparable, V any] struct {
	window  time.Duration
	entries map[K]Entry[V]
	gen     uint64
}

// NewPolicy returns an empty policy. A non-positive window uses DefaultWindow.
func NewPolicy[K comparable, V any](window time.Duration) *Policy[K, V] {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Policy[K, V]{
		window:  window,
		entries: make(map[K]Entry[V]),
	}
}

// Window returns the configured quiet period.
func (p *Policy[K, V]) Window() time.Duration { return p.window }

// Offer arms key with v, replacing any earlier entry and pushing its deadline to
// now+window. The returned entry's generation identifies this offer.
func (p *Policy[K, V]) Offer(key K, v V, now time.Time) Entry[V] {
	p.gen++
	e := Entry[V]{Value: v, Due: now.Add(p.window), Generation: p.gen}
	p.entries[key] = e
	return e
}

// Take removes and returns the entry for key if it is still the one with generation.
// A replaced or cancelled entry yields false.
func (p *Policy[K, V]) Take(key K, generation uint64) (V, bool) {
	e, ok := p.entries[key]
	if !ok || e.Generation != generation {
		var zero V
		return zero, false
	}
	delete(p.entries, key)
	return e.Value, true
}

// TakeAll removes and returns every armed entry.
func (p *Policy[K, V]) TakeAll() map[K]V {
	out := make(map[K]V, len(p.entries))
	for key, e := range p.entries {
		out[key] = e.Value
	}
	clear(p.entries)
	return out
}

// Cancel drops the entry for key and reports whether one was armed.
func (p *Policy[K, V]) Cancel(key K) bool {
	_, ok := p.entries[key]
	delete(p.entries, key)
	return ok
}

func (p *Policy[K, V]) Len() int { return len(p.entries) }
