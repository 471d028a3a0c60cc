// Package circuitbreaker wraps sony/gobreaker with project defaults.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/chainprobe/internal/apperror"
)

// Config holds circuit breaker settings.
type Config struct {
	Name string
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// IsExcluded marks errors that count neither as success nor failure.
	IsExcluded    func(err error) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns sensible defaults for an RPC dependency.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// CircuitBreaker guards calls returning T.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a circuit breaker from cfg.
func New[T any](cfg Config) *CircuitBreaker[T] {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: cfg.OnStateChange,
		IsExcluded:    cfg.IsExcluded,
	}

	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](st)}
}

// Execute runs fn if the breaker allows it. Rejections are reported as
// CIRCUIT_OPEN application errors.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	res, err := c.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, apperror.New(apperror.CodeCircuitOpen,
			apperror.WithCause(err),
			apperror.WithContext(c.cb.Name()))
	}
	return res, err
}

// State returns the current breaker state.
func (c *CircuitBreaker[T]) State() gobreaker.State {
	return c.cb.State()
}

// HealthCheck fails while the breaker is open.
func (c *CircuitBreaker[T]) HealthCheck(context.Context) (bool, string) {
	state := c.cb.State()
	return state != gobreaker.StateOpen, c.cb.Name() + " " + state.String()
}
