// Package history keeps bounded per-symbol price and quote-volume series.
package history

import "sync"

// Window is an oldest-first copy of one symbol's series.
// Prices and Volumes are index aligned.
type Window struct {
	Prices  []float64
	Volumes []float64
}

// Len returns the number of samples in the window.
func (w Window) Len() int {
	return len(w.Prices)
}

// series is a fixed-capacity ring of (price, volume) pairs.
type series struct {
	mu      sync.Mutex
	prices  []float64
	volumes []float64
	head    int // index of the oldest sample once full
	count   int
}

func newSeries(capacity int) *series {
	return &series{
		prices:  make([]float64, capacity),
		volumes: make([]float64, capacity),
	}
}

// push must be called with mu held.
func (s *series) push(price, volume float64) {
	capacity := len(s.prices)
	if s.count < capacity {
		idx := (s.head + s.count) % capacity
		s.prices[idx] = price
		s.volumes[idx] = volume
		s.count++
		return
	}
	s.prices[s.head] = price
	s.volumes[s.head] = volume
	s.head = (s.head + 1) % capacity
}

// window must be called with mu held.
func (s *series) window() Window {
	w := Window{
		Prices:  make([]float64, s.count),
		Volumes: make([]float64, s.count),
	}
	capacity := len(s.prices)
	for i := 0; i < s.count; i++ {
		idx := (s.head + i) % capacity
		w.Prices[i] = s.prices[idx]
		w.Volumes[i] = s.volumes[idx]
	}
	return w
}

// Store owns every symbol's series. The map lock only guards lookup and
// creation; each series has its own lock so distinct symbols never contend.
type Store struct {
	capacity int
	mu       sync.RWMutex
	series   map[string]*series
}

// New creates a store whose series hold at most capacity samples.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		series:   make(map[string]*series),
	}
}

// Capacity returns the fixed per-symbol capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Len returns the number of symbols observed so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}

func (s *Store) getOrCreate(symbol string) *series {
	s.mu.RLock()
	sr, ok := s.series[symbol]
	s.mu.RUnlock()
	if ok {
		return sr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok = s.series[symbol]; ok {
		return sr
	}
	sr = newSeries(s.capacity)
	s.series[symbol] = sr
	return sr
}

// Observe appends one sample for symbol, evicting the oldest at capacity,
// and returns the updated window read under the same lock.
func (s *Store) Observe(symbol string, price, volume float64) Window {
	sr := s.getOrCreate(symbol)
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.push(price, volume)
	return sr.window()
}

// Snapshot returns the current window for symbol, empty if it was never observed.
func (s *Store) Snapshot(symbol string) Window {
	s.mu.RLock()
	sr, ok := s.series[symbol]
	s.mu.RUnlock()
	if !ok {
		return Window{Prices: []float64{}, Volumes: []float64{}}
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.window()
}
