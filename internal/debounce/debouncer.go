package debounce

import (
	"sync"
	"time"
)

// FireFunc receives the latest value for a key once its window has passed quietly.
type FireFunc[K comparable, V any] func(key K, v V)

// Debouncer arms one timer per key on top of a Policy. Each Push replaces the key's value
// and restarts its window; only the latest value is handed to fire. Safe for concurrent use.
type Debouncer[K comparable, V any] struct {
	mu     sync.Mutex
	policy *Policy[K, V]
	timers map[K]Timer
	clock  Clock
	fire   FireFunc[K, V]
	closed bool
}

// New returns a debouncer. A nil clock uses the wall clock.
func New[K comparable, V any](window time.Duration, clock Clock, fire FireFunc[K, V]) *Debouncer[K, V] {
	if clock == nil {
		clock = SystemClock()
	}
	return &Debouncer[K, V]{
		policy: NewPolicy[K, V](window),
		timers: make(map[K]Timer),
		clock:  clock,
		fire:   fire,
	}
}

// Push arms key with v. It reports false after Stop.
func (d *Debouncer[K, V]) Push(key K, v V) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	entry := d.policy.Offer(key, v, d.clock.Now())
	d.timers[key] = d.clock.AfterFunc(d.policy.Window(), func() {
		d.expire(key, entry.Generation)
	})
	return true
}

// expire fires key if generation is still the armed one. A timer that lost the race
// with a newer Push or a Cancel finds a different generation and does nothing.
func (d *Debouncer[K, V]) expire(key K, generation uint64) {
	d.mu.Lock()
	v, ok := d.policy.Take(key, generation)
	if ok {
		delete(d.timers, key)
	}
	d.mu.Unlock()

	if ok {
		d.fire(key, v)
	}
}

// Cancel disarms key without firing and reports whether it was armed.
func (d *Debouncer[K, V]) Cancel(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
	return d.policy.Cancel(key)
}

// CancelAll disarms every key without firing and returns the keys that were armed.
func (d *Debouncer[K, V]) CancelAll() []K {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drainLocked()
}

// Flush fires every armed key now, in the calling goroutine.
func (d *Debouncer[K, V]) Flush() int {
	d.mu.Lock()
	for _, t := range d.timers {
		t.Stop()
	}
	clear(d.timers)
	due := d.policy.TakeAll()
	d.mu.Unlock()

	for key, v := range due {
		d.fire(key, v)
	}
	return len(due)
}

// Len returns the number of armed keys.
func (d *Debouncer[K, V]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.policy.Len()
}

// Stop disarms everything and rejects further pushes.
func (d *Debouncer[K, V]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.drainLocked()
}

func (d *Debouncer[K, V]) drainLocked() []K {
	for _, t := range d.timers {
		t.Stop()
	}
	clear(d.timers)
	taken := d.policy.TakeAll()
	keys := make([]K, 0, len(taken))
	for key := range taken {
		keys = append(keys, key)
	}
	return keys
}
