package rtdb

import (
	"context"
	"sync"
)

type subscription struct {
	id      uint64
	path    string
	onValue func(Snapshot)
	onError func(error)
}

// MemoryStore keeps the tree in process and delivers notifications synchronously
// on the writer's goroutine. It backs tests and the single-process dev mode.
type MemoryStore struct {
	mu        sync.RWMutex
	leaves    map[string]any
	subs      map[uint64]*subscription
	connSubs  map[uint64]func(bool)
	nextID    uint64
	connected bool
}

// NewMemoryStore returns an empty, connected store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leaves:    make(map[string]any),
		subs:      make(map[uint64]*subscription),
		connSubs:  make(map[uint64]func(bool)),
		connected: true,
	}
}

// Get returns the subtree at path.
func (s *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return NewSnapshot(path, BuildTree(path, s.leaves)), nil
}

// Set replaces the subtree at path and notifies related subscribers.
func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := Normalize(value)
	if err != nil {
		return err
	}
	path = CleanPath(path)

	s.mu.Lock()
	s.replaceLocked(path, normalized)
	targets := s.matching(path)
	s.mu.Unlock()

	s.deliver(targets)
	return nil
}

// Update writes every path under one lock and notifies each related
// subscriber once.
func (s *MemoryStore) Update(ctx context.Context, values map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := normalizeUpdate(values)
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return nil
	}

	s.mu.Lock()
	paths := make([]string, 0, len(normalized))
	for p, v := range normalized {
		s.replaceLocked(p, v)
		paths = append(paths, p)
	}
	targets := s.matching(paths...)
	s.mu.Unlock()

	s.deliver(targets)
	return nil
}

// replaceLocked must be called with mu held.
func (s *MemoryStore) replaceLocked(path string, value any) {
	for p := range s.leaves {
		if _, below := Relative(path, p); below {
			delete(s.leaves, p)
		}
	}
	for _, anc := range Ancestors(path) {
		delete(s.leaves, anc)
	}
	for p, v := range Flatten(path, value) {
		s.leaves[p] = v
	}
}

// Subscribe registers a listener and delivers the current subtree immediately.
func (s *MemoryStore) Subscribe(path string, onValue func(Snapshot), onError func(error)) CancelFunc {
	s.mu.Lock()
	s.nextID++
	sub := &subscription{id: s.nextID, path: CleanPath(path), onValue: onValue, onError: onError}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	s.deliver([]*subscription{sub})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub.id)
			s.mu.Unlock()
		})
	}
}

// SubscribeConnection reports connectivity, which only changes via SetConnected.
func (s *MemoryStore) SubscribeConnection(fn func(bool)) CancelFunc {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.connSubs[id] = fn
	connected := s.connected
	s.mu.Unlock()

	fn(connected)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.connSubs, id)
			s.mu.Unlock()
		})
	}
}

// SetConnected simulates the store dropping or regaining its connection.
func (s *MemoryStore) SetConnected(connected bool) {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	fns := make([]func(bool), 0, len(s.connSubs))
	for _, fn := range s.connSubs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

// matching must be called with mu held. Each subscription appears at most once.
func (s *MemoryStore) matching(paths ...string) []*subscription {
	var out []*subscription
	for _, sub := range s.subs {
		if relatedToAny(sub.path, paths) {
			out = append(out, sub)
		}
	}
	return out
}

func (s *MemoryStore) deliver(targets []*subscription) {
	for _, sub := range targets {
		s.mu.RLock()
		snap := NewSnapshot(sub.path, BuildTree(sub.path, s.leaves))
		s.mu.RUnlock()
		if sub.onValue != nil {
			sub.onValue(snap)
		}
	}
}
