package consumer

import (
	"sync"
	"time"

	"github.com/txkafka/txkafka/pkg/config"
)

// breakerState is the three-state machine spec.md §4.8 describes. This is
// deliberately distinct from pkg/resilience.CircuitBreaker (a simple
// consecutive-failure counter used elsewhere in this tree): this one trips
// on a failure ratio over a sliding window of outcomes, not a streak.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker guards one message type's consumer handler invocations.
// While Open, the poll loop pauses this type's partitions instead of
// delivering records to its handler (spec.md §4.8).
type CircuitBreaker struct {
	cfg config.CircuitBreakerConfig

	mu                sync.Mutex
	state             breakerState
	window            []bool
	pos               int
	filled            int
	openedAt          time.Time
	halfOpenSuccesses int
}

// NewCircuitBreaker builds a breaker starting Closed.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, window: make([]bool, cfg.WindowSize)}
}

// RequiresPause reports whether this type's partitions should currently be
// paused. Crossing from Open to HalfOpen happens here, lazily, the first
// time it's checked after ResetInterval has elapsed.
func (cb *CircuitBreaker) RequiresPause() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != breakerOpen {
		return false
	}
	if time.Since(cb.openedAt) < cb.cfg.ResetInterval {
		return true
	}
	cb.state = breakerHalfOpen
	cb.halfOpenSuccesses = 0
	return false
}

// RecordOutcome feeds one handler invocation's result into the breaker.
func (cb *CircuitBreaker) RecordOutcome(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		cb.window[cb.pos] = success
		cb.pos = (cb.pos + 1) % len(cb.window)
		if cb.filled < len(cb.window) {
			cb.filled++
		}
		failures := 0
		for i := 0; i < cb.filled; i++ {
			if !cb.window[i] {
				failures++
			}
		}
		if failures >= cb.cfg.TripThreshold {
			cb.trip()
		}
	case breakerHalfOpen:
		if !success {
			cb.trip()
			return
		}
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.cfg.ActiveThreshold {
			cb.state = breakerClosed
			cb.pos, cb.filled = 0, 0
			for i := range cb.window {
				cb.window[i] = false
			}
		}
	case breakerOpen:
		// Outcomes shouldn't arrive while Open (the poll loop stops
		// delivering to a paused type); ignore defensively.
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = breakerOpen
	cb.openedAt = time.Now()
}

// IsOpen reports the current state without mutating it, for diagnostics.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == breakerOpen
}
