// Package auth delivers authentication transitions to the cart engine. Credentials are
// issued elsewhere; this package only carries the fact that a user logged in or out.
package auth

import (
	"sync"
)

// Kind is the type of authentication transition.
type Kind int

const (
	LoggedIn Kind = iota + 1
	LoggedOut
)

func (k Kind) String() string {
	switch k {
	case LoggedIn:
		return "logged_in"
	case LoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Event is one authentication transition. Token is the bearer credential the remote
// cart service accepts for UserID; empty on logout.
type Event struct {
	Kind   Kind
	UserID string
	Token  string
}

// Feed fans events out to subscribers. Each subscriber gets its own buffered channel;
// a full channel drops the event for that subscriber only.
type Feed struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that cancels the subscription.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Event, buffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
	}
}

// Publish delivers ev to every subscriber and returns how many received it.
func (f *Feed) Publish(ev Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	delivered := 0
	for _, ch := range f.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Close ends every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
}
