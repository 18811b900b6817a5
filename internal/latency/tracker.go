// Package latency maintains a bounded per-symbol window of one-way
// latency samples and exposes their median, used to back-date a
// snapshot's event time.
package latency

import "sync"

// Tracker holds one bounded deque per symbol. All methods are safe for
// concurrent use: Record is called by whichever external collaborator
// measures latency, Median is called (possibly concurrently, possibly
// observing a stale value) by the upstream consumer on every message.
type Tracker struct {
	size int

	mu      sync.RWMutex
	windows map[string][]int64 // symbol -> ring of up to `size` samples
}

// NewTracker builds a Tracker. size is K in spec terms — the number of
// most-recent samples kept per symbol (default 10).
func NewTracker(symbols []string, size int) *Tracker {
	if size <= 0 {
		size = 10
	}
	t := &Tracker{
		size:    size,
		windows: make(map[string][]int64, len(symbols)),
	}
	for _, s := range symbols {
		t.windows[s] = make([]int64, 0, size)
	}
	return t
}

// Record appends sampleMs for symbol, evicting the oldest sample once
// the window is full.
func (t *Tracker) Record(symbol string, sampleMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.windows[symbol]
	if len(w) >= t.size {
		w = append(w[:0], w[1:]...)
	}
	t.windows[symbol] = append(w, sampleMs)
}

// Median returns the median of symbol's current window, or 0 if the
// window is empty. For an even-sized window the lower of the two
// central values is returned — an arbitrary but deterministic choice.
func (t *Tracker) Median(symbol string) int64 {
	t.mu.RLock()
	w := t.windows[symbol]
	if len(w) == 0 {
		t.mu.RUnlock()
		return 0
	}
	sorted := make([]int64, len(w))
	copy(sorted, w)
	t.mu.RUnlock()

	insertionSort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1]
}

// Empty reports whether symbol currently has zero latency samples —
// the upstream consumer drops frames for a symbol until this is false.
func (t *Tracker) Empty(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.windows[symbol]) == 0
}

// insertionSort sorts small slices (K defaults to 10) without pulling in
// sort.Slice's reflection-based comparator overhead on the hot path.
func insertionSort(s []int64) {
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
}
