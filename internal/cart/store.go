package cart

import (
	"log/slog"
	"sync"
	"time"
)

// Observer is called after every successful transition, in dispatch order, with the
// event that caused it and the resulting state. Use ev.Committed() to ignore optimistic
// and bookkeeping transitions. Observers must not dispatch.
type Observer func(ev Event, next State)

// StoreConfig holds the optional collaborators of a Store.
type StoreConfig struct {
	Logger *slog.Logger
	Now    func() time.Time // Defaults to time.Now
}

// Store owns the current cart State. Dispatch is the only way to change it and is
// safe for concurrent use; readers get immutable snapshots.
type Store struct {
	mu    sync.Mutex
	state State

	// notifyMu keeps observer calls in the same order as the transitions they report.
	notifyMu  sync.Mutex
	observers map[int]Observer
	nextID    int

	logger *slog.Logger
	now    func() time.Time
}

// NewStore returns a store holding initial.
func NewStore(initial State, cfg StoreConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		state:     initial.clone(),
		observers: make(map[int]Observer),
		logger:    logger,
		now:       now,
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies ev to the current state. On error the state is unchanged and the
// current state is returned with the error.
func (s *Store) Dispatch(ev Event) (State, error) {
	return s.DispatchFunc(func(State) (Event, error) { return ev, nil })
}

// DispatchFunc builds the event from the current state and applies it atomically, so
// check-then-act callers cannot race other writers. A nil event is a no-op.
func (s *Store) DispatchFunc(build func(current State) (Event, error)) (State, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	current := s.state
	ev, err := build(current)
	if err != nil || ev == nil {
		s.mu.Unlock()
		return current, err
	}
	next, err := Apply(current, ev, s.now())
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug("cart transition rejected",
			slog.String("event", ev.Name()),
			slog.String("error", err.Error()),
		)
		return current, err
	}
	s.state = next
	observers := s.observerList()
	s.mu.Unlock()

	for _, observe := range observers {
		observe(ev, next)
	}
	return next, nil
}

// Subscribe registers o and returns a function that removes it.
func (s *Store) Subscribe(o Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// observerList returns observers in registration order. Caller holds mu.
func (s *Store) observerList() []Observer {
	out := make([]Observer, 0, len(s.observers))
	for id := 0; id < s.nextID; id++ {
		if o, ok := s.observers[id]; ok {
			out = append(out, o)
		}
	}
	return out
}
