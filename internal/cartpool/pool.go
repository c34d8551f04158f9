// Package cartpool keeps the bounded set of recently created cart ids that
// simulated users pick targets from.
package cartpool

import (
	"math/rand"
	"sync"
)

// DefaultCapacity is the number of cart ids kept when no capacity is given
const DefaultCapacity = 1000

// Pool is a fixed-capacity FIFO of cart ids shared by all simulated users.
// Duplicates are allowed. Appending to a full pool evicts the oldest id.
type Pool struct {
	mu    sync.Mutex
	ids   []string // ring storage, len == capacity
	head  int      // index of the oldest id
	count int
}

// New creates an empty pool. A capacity <= 0 falls back to DefaultCapacity.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{ids: make([]string, capacity)}
}

// Add appends id at the tail, evicting the oldest id when full
func (p *Pool) Add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tail := (p.head + p.count) % len(p.ids)
	p.ids[tail] = id
	if p.count < len(p.ids) {
		p.count++
		return
	}
	p.head = (p.head + 1) % len(p.ids)
}

// Remove deletes every occurrence of id, keeping the order of the rest.
// It reports whether id was present.
func (p *Pool) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := 0
	for i := 0; i < p.count; i++ {
		v := p.ids[p.index(i)]
		if v == id {
			continue
		}
		p.ids[p.index(kept)] = v
		kept++
	}
	for i := kept; i < p.count; i++ {
		p.ids[p.index(i)] = ""
	}

	removed := kept < p.count
	p.count = kept
	return removed
}

// Random returns a uniformly chosen id, or false when the pool is empty
func (p *Pool) Random(r *rand.Rand) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == 0 {
		return "", false
	}
	return p.ids[p.index(r.Intn(p.count))], true
}

// Contains reports whether id is currently tracked
func (p *Pool) Contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.count; i++ {
		if p.ids[p.index(i)] == id {
			return true
		}
	}
	return false
}

// Len returns the number of tracked ids
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Cap returns the pool capacity
func (p *Pool) Cap() int {
	return len(p.ids)
}

// Tail returns the most recently added id
func (p *Pool) Tail() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == 0 {
		return "", false
	}
	return p.ids[p.index(p.count-1)], true
}

// Snapshot returns the tracked ids from oldest to newest
func (p *Pool) Snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, p.count)
	for i := range out {
		out[i] = p.ids[p.index(i)]
	}
	return out
}

// index maps a logical position (0 = oldest) to a slot in the ring
func (p *Pool) index(i int) int {
	return (p.head + i) % len(p.ids)
}
