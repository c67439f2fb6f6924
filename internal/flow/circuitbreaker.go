package flow

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitOpenError is returned while the breaker is open (spec §4.D /
// §7: "Circuit breaker tripped").
type CircuitOpenError struct{}

func (e *CircuitOpenError) Error() string { return "Circuit breaker tripped" }

// CircuitBreakerConfig configures CircuitBreaker (spec §4.D
// circuitBreaker).
type CircuitBreakerConfig struct {
	MaxFailures       uint32
	ResetAfter        time.Duration
	ShouldTripOnError func(err error) bool

	// Name identifies this breaker to OnStateChange; defaults to "".
	Name string
	// OnStateChange reports every closed/half-open/open transition, for
	// callers (e.g. internal/metrics) that track breaker state as a
	// gauge. from/to are one of gobreaker.StateClosed/HalfOpen/Open.
	OnStateChange func(name string, from, to gobreaker.State)
}

// CircuitBreaker wraps task with closed/open/half-open state, delegated
// to sony/gobreaker: ReadyToTrip counts consecutive failures against
// MaxFailures, Timeout is ResetAfter, and IsSuccessful treats an error
// that ShouldTripOnError rejects as a non-failure so it never counts
// toward tripping (default: every error trips).
func CircuitBreaker(task *Task, cfg CircuitBreakerConfig) (*Task, error) {
	shouldTrip := cfg.ShouldTripOnError
	if shouldTrip == nil {
		shouldTrip = func(error) bool { return true }
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.ResetAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !shouldTrip(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			safeCall(func() {
				if cfg.OnStateChange != nil {
					cfg.OnStateChange(name, from, to)
				}
			})
		},
	})

	return task.layer("circuitBreaker", func(ctx context.Context, args ...any) (any, error) {
		val, err := cb.Execute(func() (any, error) {
			return task.call(ctx, args...)
		})
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, &CircuitOpenError{}
		}
		return val, err
	})
}
