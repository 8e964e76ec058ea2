package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // fetches pass through
	StateOpen                  // fetches are refused
	StateHalfOpen              // one trial fetch in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker counts consecutive upstream failures for one host.
type Breaker struct {
	mutex       sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	trialActive bool

	threshold int
	cooldown  time.Duration
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a fetch may go ahead. Once the cooldown has passed an
// open breaker lets exactly one trial through.
func (b *Breaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.trialActive = true
		return true
	case StateHalfOpen:
		if b.trialActive {
			return false
		}
		b.trialActive = true
		return true
	default:
		return true
	}
}

// RecordFailure counts a failed fetch. It reports true when this failure
// opened the breaker.
func (b *Breaker) RecordFailure() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures++
	b.trialActive = false

	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.threshold) {
		b.state = StateOpen
		b.openedAt = time.Now()
		return true
	}
	return false
}

// Release gives back a fetch slot without judging the upstream, for fetches
// abandoned by the caller. A half-open breaker lets the next trial through.
func (b *Breaker) Release() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.trialActive = false
}

func (b *Breaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures = 0
	b.trialActive = false
	b.state = StateClosed
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}
