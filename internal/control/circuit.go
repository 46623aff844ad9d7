package control

import (
	"sync"
	"time"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker guards one completion route. Failures are counted per
// error kind; reaching the threshold in any kind opens the circuit.
type CircuitBreaker struct {
	Threshold int
	Cooldown  time.Duration

	mu         sync.Mutex
	state      CircuitState
	failures   map[string]int
	openedAt   time.Time
	openedKind string
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		state:     CircuitClosed,
		failures:  map[string]int{},
	}
}

func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Allow returns whether the route may be tried at this instant. An open
// circuit moves to half-open once the cooldown has elapsed.
func (c *CircuitBreaker) Allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CircuitOpen {
		return true
	}
	if now.Sub(c.openedAt) >= c.Cooldown {
		c.state = CircuitHalfOpen
		return true
	}
	return false
}

// RecordSuccess closes the circuit and forgets past failures.
func (c *CircuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = CircuitClosed
	c.openedKind = ""
	c.failures = map[string]int{}
}

// RecordFailure counts a failure of the given kind. A failed half-open trial call
// reopens the circuit immediately.
func (c *CircuitBreaker) RecordFailure(kind string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == "" {
		kind = "unknown"
	}
	if c.state == CircuitHalfOpen {
		c.open(kind, now)
		return
	}
	c.failures[kind]++
	if c.failures[kind] >= c.Threshold {
		c.open(kind, now)
	}
}

func (c *CircuitBreaker) open(kind string, now time.Time) {
	c.state = CircuitOpen
	c.openedAt = now
	c.openedKind = kind
}

// OpenedKind is the error kind that last opened the circuit.
func (c *CircuitBreaker) OpenedKind() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openedKind
}
