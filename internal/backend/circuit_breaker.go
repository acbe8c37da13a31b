package backend

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while the breaker rejects requests.
var ErrCircuitOpen = errors.New("backend: circuit breaker is open")

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	// BreakerClosed lets requests through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects every request until the open timeout passes.
	BreakerOpen
	// BreakerHalfOpen lets probe requests through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// minErrorRateSamples is the number of calls a window needs before its
// error rate can trip the breaker.
const minErrorRateSamples = 10

// BreakerSettings configures a CircuitBreaker. Zero values fall back to
// defaults; a zero ErrorRateThreshold or ErrorRateWindow disables rate
// tripping.
type BreakerSettings struct {
	FailureThreshold   int
	SuccessThreshold   int
	OpenTimeout        time.Duration
	ErrorRateThreshold float64
	ErrorRateWindow    time.Duration
	// OnStateChange runs, outside the breaker lock, after every transition.
	OnStateChange func(from, to BreakerState)
}

// CircuitBreaker guards the commerce API. It opens after consecutive
// failures or a high error rate within a tumbling window, and closes again
// after enough successful probes. It is safe for concurrent use.
type CircuitBreaker struct {
	mu       sync.Mutex
	settings BreakerSettings
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time

	windowStart    time.Time
	windowTotal    int
	windowFailures int
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(s BreakerSettings) *CircuitBreaker {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold < 1 {
		s.SuccessThreshold = 2
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		settings:    s,
		state:       BreakerClosed,
		windowStart: time.Now(),
	}
}

// Allow returns ErrCircuitOpen while the breaker is open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	from, to, changed := cb.expireOpenLocked()
	state := cb.state
	cb.mu.Unlock()
	cb.notify(from, to, changed)

	if state == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess records a call that reached the API and did not fail on
// the server side.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case BreakerClosed:
		cb.failures = 0
		cb.countLocked(false)
	case BreakerHalfOpen:
		cb.probes++
		if cb.probes >= cb.settings.SuccessThreshold {
			cb.state = BreakerClosed
			cb.failures = 0
			cb.probes = 0
			cb.resetWindowLocked()
		}
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to, from != to)
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case BreakerClosed:
		cb.failures++
		cb.countLocked(true)
		if cb.failures >= cb.settings.FailureThreshold || cb.rateExceededLocked() {
			cb.openLocked()
		}
	case BreakerHalfOpen:
		cb.openLocked()
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to, from != to)
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	from, to, changed := cb.expireOpenLocked()
	state := cb.state
	cb.mu.Unlock()
	cb.notify(from, to, changed)
	return state
}

// ErrorRate returns the failure ratio and call count of the current window.
func (cb *CircuitBreaker) ErrorRate() (rate float64, total int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rollWindowLocked()
	if cb.windowTotal == 0 {
		return 0, 0
	}
	return float64(cb.windowFailures) / float64(cb.windowTotal), cb.windowTotal
}

func (cb *CircuitBreaker) expireOpenLocked() (from, to BreakerState, changed bool) {
	if cb.state == BreakerOpen && time.Since(cb.openedAt) > cb.settings.OpenTimeout {
		cb.state = BreakerHalfOpen
		cb.probes = 0
		return BreakerOpen, BreakerHalfOpen, true
	}
	return cb.state, cb.state, false
}

func (cb *CircuitBreaker) openLocked() {
	cb.state = BreakerOpen
	cb.openedAt = time.Now()
	cb.probes = 0
	cb.resetWindowLocked()
}

func (cb *CircuitBreaker) countLocked(failed bool) {
	if cb.settings.ErrorRateWindow <= 0 {
		return
	}
	cb.rollWindowLocked()
	cb.windowTotal++
	if failed {
		cb.windowFailures++
	}
}

func (cb *CircuitBreaker) rollWindowLocked() {
	if cb.settings.ErrorRateWindow > 0 && time.Since(cb.windowStart) > cb.settings.ErrorRateWindow {
		cb.resetWindowLocked()
	}
}

func (cb *CircuitBreaker) resetWindowLocked() {
	cb.windowStart = time.Now()
	cb.windowTotal = 0
	cb.windowFailures = 0
}

func (cb *CircuitBreaker) rateExceededLocked() bool {
	s := cb.settings
	if s.ErrorRateThreshold <= 0 || s.ErrorRateWindow <= 0 || cb.windowTotal < minErrorRateSamples {
		return false
	}
	return float64(cb.windowFailures)/float64(cb.windowTotal) >= s.ErrorRateThreshold
}

func (cb *CircuitBreaker) notify(from, to BreakerState, changed bool) {
	if changed && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(from, to)
	}
}
