package debounce

import (
	"sync"
	"testing"
	"time"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fired struct {
	key string
	v   int
}

type recorder struct {
	mu    sync.Mutex
	calls []fired
}

func (r *recorder) fire(key string, v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fired{key, v})
}

func (r *recorder) snapshot() []fired {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fired(nil), r.calls...)
}

func TestPolicy_OfferReplacesAndTakeChecksGeneration(t *testing.T) {
	p := NewPolicy[string, int](100 * time.Millisecond)

	first := p.Offer("A", 1, start)
	second := p.Offer("A", 2, start.Add(50*time.Millisecond))

	if first.Generation == second.Generation {
		t.Fatal("replacement should get a new generation")
	}
	if want := start.Add(150 * time.Millisecond); !second.Due.Equal(want) {
		t.Errorf("Due = %v, want %v", second.Due, want)
	}
	if _, ok := p.Take("A", first.Generation); ok {
		t.Error("Take with a replaced generation should fail")
	}
	v, ok := p.Take("A", second.Generation)
	if !ok || v != 2 {
		t.Errorf("Take() = %d, %v, want 2, true", v, ok)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestPolicy_DefaultWindowAndCancel(t *testing.T) {
	p := NewPolicy[string, int](0)
	if p.Window() != DefaultWindow {
		t.Errorf("Window() = %v, want %v", p.Window(), DefaultWindow)
	}

	p.Offer("A", 1, start)
	p.Offer("B", 1, start.Add(time.Second))

	if e := p.Offer("A", 2, start); !e.Due.Equal(start.Add(DefaultWindow)) {
		t.Errorf("Due = %v, want %v", e.Due, start.Add(DefaultWindow))
	}
	if !p.Cancel("B") || p.Cancel("B") {
		t.Error("Cancel should report true once, then false")
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	clock := NewManualClock(start)
	rec := &recorder{}
	d := New[string, int](500*time.Millisecond, clock, rec.fire)

	// Three requests within 100ms produce exactly one write carrying the last value.
	d.Push("A", 1)
	clock.Advance(40 * time.Millisecond)
	d.Push("A", 2)
	clock.Advance(60 * time.Millisecond)
	d.Push("A", 3)

	clock.Advance(499 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("fired early: %v", got)
	}

	clock.Advance(time.Millisecond)
	got := rec.snapshot()
	if len(got) != 1 || got[0] != (fired{"A", 3}) {
		t.Fatalf("calls = %v, want one call with A=3", got)
	}
	if clock.Armed() != 0 {
		t.Errorf("Armed() = %d, want 0", clock.Armed())
	}
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	clock := NewManualClock(start)
	rec := &recorder{}
	d := New[string, int](500*time.Millisecond, clock, rec.fire)

	d.Push("A", 1)
	clock.Advance(300 * time.Millisecond)
	d.Push("B", 7)
	clock.Advance(200 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != (fired{"A", 1}) {
		t.Fatalf("calls = %v, want only A", got)
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want only B armed", d.Len())
	}

	clock.Advance(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 2 || got[1] != (fired{"B", 7}) {
		t.Errorf("calls = %v, want B fired second", got)
	}
}

func TestDebouncer_CancelAndFlush(t *testing.T) {
	clock := NewManualClock(start)
	rec := &recorder{}
	d := New[string, int](500*time.Millisecond, clock, rec.fire)

	d.Push("A", 1)
	d.Push("B", 2)
	if !d.Cancel("A") {
		t.Error("Cancel(A) = false, want true")
	}
	if n := d.Flush(); n != 1 {
		t.Errorf("Flush() = %d, want 1", n)
	}
	got := rec.snapshot()
	if len(got) != 1 || got[0] != (fired{"B", 2}) {
		t.Fatalf("calls = %v, want B only", got)
	}

	// Nothing fires later: timers were stopped.
	clock.Advance(time.Second)
	if got := rec.snapshot(); len(got) != 1 {
		t.Errorf("calls after advance = %v, want no more", got)
	}
}

func TestDebouncer_StopRejectsPush(t *testing.T) {
	clock := NewManualClock(start)
	rec := &recorder{}
	d := New[string, int](500*time.Millisecond, clock, rec.fire)

	d.Push("A", 1)
	d.Stop()
	if d.Push("A", 2) {
		t.Error("Push after Stop should return false")
	}
	clock.Advance(time.Second)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("calls = %v, want none", got)
	}
}

func TestDebouncer_CancelAllReturnsKeys(t *testing.T) {
	d := New[string, int](time.Second, NewManualClock(start), func(string, int) {})
	d.Push("A", 1)
	d.Push("B", 1)
	if keys := d.CancelAll(); len(keys) != 2 {
		t.Errorf("CancelAll() = %v, want 2 keys", keys)
	}
	if d.Len() != 0 {
		t.Errorf("Len() = %d, want 0", d.Len())
	}
}

func TestDebouncer_SystemClock(t *testing.T) {
	done := make(chan fired, 1)
	d := New[string, int](10*time.Millisecond, nil, func(key string, v int) { done <- fired{key, v} })

	d.Push("A", 1)
	d.Push("A", 2)

	select {
	case got := <-done:
		if got != (fired{"A", 2}) {
			t.Errorf("fired %v, want A=2", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}
