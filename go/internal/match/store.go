package match

import "sync"

// Store owns the authoritative state for exactly one match. All writes
// funnel through Merge/Reset; callers only ever see snapshot copies.
//
// Subscribers are invoked while the mutation is still serialized, so every
// subscriber observes snapshots in the exact order they were produced.
// Subscriber callbacks must therefore be cheap and non-blocking (enqueue
// and return).
type Store struct {
	mu          sync.Mutex
	state       State
	subscribers []func(State)
}

// NewStore creates a store seeded with the default state.
func NewStore() *Store {
	return &Store{state: DefaultState()}
}

// NewStoreWith creates a store seeded with a restored snapshot.
func NewStoreWith(s State) *Store {
	return &Store{state: s.clone()}
}

// Get returns a snapshot copy of the current state.
func (st *Store) Get() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.clone()
}

// Merge shallow-merges the patch into the current state and returns the
// resulting snapshot. The merge and the subscriber notifications happen
// under one critical section; two merges can never interleave their field
// writes or publish out of order.
func (st *Store) Merge(p Partial) State {
	st.mu.Lock()
	defer st.mu.Unlock()
	p.apply(&st.state)
	return st.publishLocked()
}

// Update runs fn against the live state under the store lock and publishes
// the result. It is the read-modify-write form of Merge, for mutations that
// depend on the current state (tick decrements, first-free-slot search).
func (st *Store) Update(fn func(*State)) State {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.state)
	return st.publishLocked()
}

// Reset restores the default state and returns the resulting snapshot.
func (st *Store) Reset() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = DefaultState()
	return st.publishLocked()
}

// Subscribe registers a callback invoked with a snapshot after every
// mutation. Registration order is notification order.
func (st *Store) Subscribe(fn func(State)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subscribers = append(st.subscribers, fn)
}

func (st *Store) publishLocked() State {
	snap := st.state.clone()
	for _, fn := range st.subscribers {
		fn(snap)
	}
	return snap
}
