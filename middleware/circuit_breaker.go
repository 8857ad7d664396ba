package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// StateClosed means calls pass through normally.
	StateClosed CircuitState = iota
	// StateOpen means calls fail fast.
	StateOpen
	// StateHalfOpen means trial calls test whether the provider recovered.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
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

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	// Default: 5
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a trial call.
	// Default: 30s
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of successful trial calls that close the circuit.
	// Default: 1
	SuccessThreshold int
}

// DefaultCircuitBreakerConfig returns a circuit breaker config with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 1,
	}
}

// CircuitBreakerError is returned while the circuit is open.
type CircuitBreakerError struct {
	FailureCount int
	RetryAfter   time.Duration
}

// Error implements the error interface.
func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("model provider circuit is open after %d failures; retry in %v", e.FailureCount, e.RetryAfter.Round(time.Second))
}

// CircuitBreakerGateway stops calling a failing model provider. Every run
// shares it, so an outage makes later runs fail fast with a partial answer
// instead of each waiting out its own timeouts and retries.
//
// State transitions:
//   - closed -> open: after FailureThreshold consecutive failures
//   - open -> half_open: once RecoveryTimeout has elapsed
//   - half_open -> closed: after SuccessThreshold consecutive successes
//   - half_open -> open: on any failure
type CircuitBreakerGateway struct {
	gateway agenkit.Gateway
	config  CircuitBreakerConfig
	now     func() time.Time

	mu           sync.Mutex
	state        CircuitState
	failureCount int
	successCount int
	openedAt     time.Time
	onChange     func(from, to CircuitState)
}

var _ agenkit.Gateway = (*CircuitBreakerGateway)(nil)

// NewCircuitBreakerGateway wraps gateway. onChange, if non-nil, is called on
// every state change while the breaker's lock is held.
func NewCircuitBreakerGateway(gateway agenkit.Gateway, config CircuitBreakerConfig, onChange func(from, to CircuitState)) *CircuitBreakerGateway {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	return &CircuitBreakerGateway{
		gateway:  gateway,
		config:   config,
		now:      time.Now,
		state:    StateClosed,
		onChange: onChange,
	}
}

// State returns the current circuit state.
func (c *CircuitBreakerGateway) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CircuitBreakerGateway) changeState(next CircuitState) {
	if c.state == next {
		return
	}
	prev := c.state
	c.state = next
	if c.onChange != nil {
		c.onChange(prev, next)
	}
}

// admit decides whether a call may proceed.
func (c *CircuitBreakerGateway) admit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return nil
	}
	elapsed := c.now().Sub(c.openedAt)
	if elapsed >= c.config.RecoveryTimeout {
		c.changeState(StateHalfOpen)
		c.successCount = 0
		return nil
	}
	return &CircuitBreakerError{FailureCount: c.failureCount, RetryAfter: c.config.RecoveryTimeout - elapsed}
}

func (c *CircuitBreakerGateway) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		switch c.state {
		case StateHalfOpen:
			c.successCount++
			if c.successCount >= c.config.SuccessThreshold {
				c.changeState(StateClosed)
				c.failureCount = 0
				c.successCount = 0
			}
		case StateClosed:
			c.failureCount = 0
		}
		return
	}

	c.failureCount++
	switch c.state {
	case StateHalfOpen:
		c.openedAt = c.now()
		c.changeState(StateOpen)
		c.successCount = 0
	case StateClosed:
		if c.failureCount >= c.config.FailureThreshold {
			c.openedAt = c.now()
			c.changeState(StateOpen)
		}
	}
}

// Invoke implements agenkit.Gateway. Calls abandoned because the caller's
// context ended are not counted against the provider.
func (c *CircuitBreakerGateway) Invoke(ctx context.Context, req agenkit.Request) (agenkit.Action, error) {
	if err := c.admit(); err != nil {
		return nil, err
	}

	action, err := c.gateway.Invoke(ctx, req)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	c.record(err)
	return action, err
}
