package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and rejects
// calls for the cooldown. After the cooldown a single probe is let through;
// its outcome closes or reopens the circuit.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         CircuitBreakerState
	failures      int
	maxFailures   int
	cooldown      time.Duration
	openedAt      time.Time
	probeInFlight bool
	now           func() time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:       StateClosed,
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Call runs fn unless the circuit is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = true
		return nil
	case StateHalfOpen:
		if cb.probeInFlight {
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// A caller giving up says nothing about the backend's health.
	if errors.Is(err, context.Canceled) {
		cb.probeInFlight = false
		return
	}

	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		cb.probeInFlight = false
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
	cb.probeInFlight = false
}

type circuitBreakerLLM struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware gives each wrapped backend its own breaker.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{next: next, cb: NewCircuitBreaker(maxFailures, cooldown)}
	}
}

func (c *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, Usage, error) {
	var (
		text  string
		usage Usage
	)
	err := c.cb.Call(func() error {
		var err error
		text, usage, err = c.next.DoRequest(ctx, prompt, opts)
		return err
	})
	return text, usage, err
}

func (c *circuitBreakerLLM) GetModel() string { return c.next.GetModel() }

func (c *circuitBreakerLLM) Provider() string { return c.next.Provider() }
