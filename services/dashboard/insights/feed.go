// Package insights keeps the short, newest-first history of automation and
// manual-control messages shown on the dashboard.
package insights

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is how many insights the dashboard shows.
const DefaultCapacity = 10

// Kind classifies an insight for display.
type Kind string

const (
	KindInfo  Kind = "info"
	KindAI    Kind = "ai"
	KindError Kind = "error"
)

// Insight is one feed entry.
type Insight struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Feed is a bounded list of insights, newest first.
type Feed struct {
	mu        sync.RWMutex
	items     []Insight
	capacity  int
	listeners map[uint64]func(Insight)
	nextID    uint64
	now       func() time.Time
}

// NewFeed returns an empty feed. A capacity below one selects DefaultCapacity.
func NewFeed(capacity int) *Feed {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Feed{
		items:     make([]Insight, 0, capacity),
		capacity:  capacity,
		listeners: make(map[uint64]func(Insight)),
		now:       time.Now,
	}
}

// Add prepends a message, dropping the oldest entries beyond capacity.
func (f *Feed) Add(kind Kind, message string) Insight {
	f.mu.Lock()
	in := Insight{ID: uuid.New(), Kind: kind, Message: message, CreatedAt: f.now().UTC()}

	items := make([]Insight, 0, f.capacity)
	items = append(items, in)
	items = append(items, f.items...)
	if len(items) > f.capacity {
		items = items[:f.capacity]
	}
	f.items = items

	fns := make([]func(Insight), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(in)
	}
	return in
}

// Info, AI and Error are shorthands for Add.
func (f *Feed) Info(message string) Insight  { return f.Add(KindInfo, message) }
func (f *Feed) AI(message string) Insight    { return f.Add(KindAI, message) }
func (f *Feed) Error(message string) Insight { return f.Add(KindError, message) }

// List returns a copy of the feed, newest first.
func (f *Feed) List() []Insight {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Insight, len(f.items))
	copy(out, f.items)
	return out
}

// Len reports how many insights are held.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

// Subscribe registers fn for every new insight and returns its cancel func.
func (f *Feed) Subscribe(fn func(Insight)) func() {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.listeners[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}
