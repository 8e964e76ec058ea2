package circuitbreaker

import (
	"sync"
	"time"
)

// Registry hands out one Breaker per key, created on first use.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
}

func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (r *Registry) Get(key string) *Breaker {
	r.mutex.RLock()
	b, ok := r.breakers[key]
	r.mutex.RUnlock()

	if ok {
		return b
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if b, ok = r.breakers[key]; ok {
		return b
	}

	b = NewBreaker(r.threshold, r.cooldown)
	r.breakers[key] = b
	return b
}

// States returns the current state of every known breaker.
func (r *Registry) States() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	states := make(map[string]State, len(r.breakers))
	for key, b := range r.breakers {
		states[key] = b.State()
	}
	return states
}
