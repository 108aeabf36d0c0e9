package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker is shared by every caller of one upstream, so its state
// spans requests.
type CircuitBreaker struct {
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           State
	probing         bool
	// generation advances each time the breaker opens; results from calls
	// admitted in an earlier generation are ignored.
	generation uint64
	now        func() time.Time
	mu         sync.Mutex
}

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker is open. Only errors for which
// countable returns true move the breaker towards open; a nil countable
// counts every error.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error, countable func(error) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, gen, err := cb.acquire()
	if err != nil {
		return err
	}

	err = fn()
	cb.release(probe, gen, err != nil && (countable == nil || countable(err)))
	return err
}

func (cb *CircuitBreaker) acquire() (bool, uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Open -> HalfOpen once the reset timeout has elapsed; a single probe goes through.
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) <= cb.resetTimeout {
			return false, 0, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.failureCount = 0
	}
	if cb.state == StateHalfOpen {
		if cb.probing {
			return false, 0, ErrCircuitOpen
		}
		cb.probing = true
		return true, cb.generation, nil
	}
	return false, cb.generation, nil
}

func (cb *CircuitBreaker) release(probe bool, gen uint64, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
		if failed {
			cb.trip()
			return
		}
		cb.state = StateClosed
		cb.failureCount = 0
		return
	}

	// Admitted before the breaker last opened.
	if gen != cb.generation || cb.state != StateClosed {
		return
	}
	if !failed {
		cb.failureCount = 0
		return
	}
	cb.failureCount++
	cb.lastFailureTime = cb.now()
	if cb.failureCount >= cb.maxFailures {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.lastFailureTime = cb.now()
	cb.generation++
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
