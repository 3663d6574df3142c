package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// CircuitState is the state of one host's circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Fetches allowed
	CircuitOpen                         // Host failing, fetches rejected
	CircuitHalfOpen                     // Probing whether the host recovered
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the per-host circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           // Failures within FailureWindow that open the circuit (default: 5)
	SuccessThreshold int           // Successes in half-open that close it again (default: 2)
	Timeout          time.Duration // Time spent open before probing (default: 30s)
	FailureWindow    time.Duration // Window failures are counted in (default: 1m)
}

// DefaultCircuitBreakerConfig returns the default circuit breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		FailureWindow:    time.Minute,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = def.FailureWindow
	}
	return c
}

// CircuitBreaker stops fetching from a script host that keeps failing, so a
// lesson whose remote scripts are down does not stall every step visit on
// retries.
type CircuitBreaker struct {
	host   string
	config CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        []time.Time
	successes       int
	lastStateChange time.Time
}

// NewCircuitBreaker creates a closed breaker for host.
func NewCircuitBreaker(host string, config CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CircuitBreaker{
		host:            host,
		config:          config.withDefaults(),
		logger:          logger,
		now:             time.Now,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Allow reports whether a fetch of ref may go ahead.
func (cb *CircuitBreaker) Allow(ref string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	wait := cb.config.Timeout - cb.now().Sub(cb.lastStateChange)
	if wait <= 0 {
		cb.transitionTo(CircuitHalfOpen)
		return nil
	}
	return &CircuitOpenError{Ref: ref, Host: cb.host, RetryAfter: wait}
}

// Record updates the breaker with the outcome of a fetch.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil:
		cb.recordSuccess()
	case isHostFailure(err):
		cb.recordFailure(cb.now())
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	case CircuitClosed:
		cb.failures = cb.failures[:0]
	}
}

func (cb *CircuitBreaker) recordFailure(now time.Time) {
	cb.failures = append(cb.failures, now)

	cutoff := now.Add(-cb.config.FailureWindow)
	recent := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	cb.failures = recent

	switch cb.state {
	case CircuitClosed:
		if len(cb.failures) >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	if cb.state == state {
		return
	}
	old := cb.state
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.successes = 0
	if state == CircuitClosed {
		cb.failures = cb.failures[:0]
	}
	cb.logger.Info("circuit state changed", "host", cb.host, "from", old.String(), "to", state.String())
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = cb.failures[:0]
	cb.successes = 0
	cb.lastStateChange = cb.now()
}

// isHostFailure reports whether err says something about the host's health.
// Missing scripts, refused references and caller cancellation do not.
func isHostFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var notFound *NotFoundError
	var validation *ValidationError
	var open *CircuitOpenError
	if errors.As(err, &notFound) || errors.As(err, &validation) || errors.As(err, &open) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	var sourceErr *SourceError
	if errors.As(err, &sourceErr) {
		return true
	}
	return isRetryableError(err)
}
