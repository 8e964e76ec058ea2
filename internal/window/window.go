// Package window keeps a bounded rolling window of numeric samples.
package window

import (
	"math"
	"sync"
	"time"
)

const DefaultCapacity = 60

// Summary describes the samples currently held by a Window.
type Summary struct {
	Current   float64 `json:"current"`
	Peak      float64 `json:"peak"`
	Average   float64 `json:"average"`
	Count     int     `json:"count"`
	Timestamp int64   `json:"timestamp"`
}

// Window is a fixed-capacity ring of samples. Once full, every Add evicts the
// oldest sample. Safe for concurrent use.
type Window struct {
	mu      sync.RWMutex
	samples []float64
	head    int
	count   int
	sum     float64
	peak    float64
	last    time.Time
}

// New creates a window holding at most capacity samples. A capacity below one
// falls back to DefaultCapacity.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Window{samples: make([]float64, capacity)}
}

// Add records v observed at at.
func (w *Window) Add(v float64, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var evicted float64
	full := w.count == len(w.samples)
	if full {
		evicted = w.samples[w.head]
		w.sum -= evicted
	} else {
		w.count++
	}

	w.samples[w.head] = v
	w.head = (w.head + 1) % len(w.samples)
	w.sum += v
	w.last = at

	switch {
	case w.count == 1 || v >= w.peak:
		w.peak = v
	case full && evicted == w.peak:
		w.peak = w.max()
	}
}

func (w *Window) max() float64 {
	peak := math.Inf(-1)
	for i := 0; i < w.count; i++ {
		if s := w.samples[w.index(i)]; s > peak {
			peak = s
		}
	}
	return peak
}

// index maps the i-th oldest sample to its slot.
func (w *Window) index(i int) int {
	start := w.head - w.count
	if start < 0 {
		start += len(w.samples)
	}
	return (start + i) % len(w.samples)
}

// Summary returns the current, peak and rounded average values. An empty
// window yields a zero Summary.
func (w *Window) Summary() Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.count == 0 {
		return Summary{}
	}

	return Summary{
		Current:   w.samples[w.index(w.count-1)],
		Peak:      w.peak,
		Average:   math.Round(w.sum / float64(w.count)),
		Count:     w.count,
		Timestamp: w.last.UnixMilli(),
	}
}

// Values returns the samples oldest first.
func (w *Window) Values() []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]float64, w.count)
	for i := range out {
		out[i] = w.samples[w.index(i)]
	}
	return out
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.count
}

func (w *Window) Cap() int {
	return len(w.samples)
}
