package flow

import (
	"fmt"
	"time"
)

// FlowOptionKind names one of composeFlow's recognized wrapper keys.
type FlowOptionKind string

const (
	FlowRateLimit      FlowOptionKind = "rateLimit"
	FlowThrottle       FlowOptionKind = "throttle"
	FlowDebounce       FlowOptionKind = "debounce"
	FlowCircuitBreaker FlowOptionKind = "circuitBreaker"
	FlowInflight       FlowOptionKind = "inflight"
	FlowRetry          FlowOptionKind = "retry"
	FlowWithTimeout    FlowOptionKind = "withTimeout"
)

// FlowOption is one entry in the ordered list composeFlow wraps with.
// Go has no ordered-map literal, so where the spec's source language
// relies on object-key insertion order, composeFlow here takes an
// explicit slice instead: index 0 is the innermost wrapper, the last
// entry is outermost (spec §4.D: "the first key is the innermost
// wrapper, the last is the outermost").
type FlowOption struct {
	Kind           FlowOptionKind
	RateLimit      *RateLimitConfig
	Throttle       *ThrottleConfig
	Debounce       *DebounceConfig
	CircuitBreaker *CircuitBreakerConfig
	Inflight       *InflightConfig
	Retry          *RetryConfig
	WithTimeout    *time.Duration
}

// ComposeHandles collects the imperative handles produced by any
// throttle/debounce entries in the option list, keyed by their position.
type ComposeHandles struct {
	Throttle map[int]*ThrottleHandle
	Debounce map[int]*DebounceHandle
}

// ComposeFlow wraps task through opts in order, rejecting fewer than two
// entries or an unrecognized kind (spec §4.D composeFlow).
func ComposeFlow(task *Task, opts []FlowOption) (*Task, *ComposeHandles, error) {
	if len(opts) < 2 {
		return nil, nil, fmt.Errorf("flow: composeFlow requires at least two wrappers, got %d", len(opts))
	}

	handles := &ComposeHandles{Throttle: map[int]*ThrottleHandle{}, Debounce: map[int]*DebounceHandle{}}
	cur := task
	var err error

	for i, opt := range opts {
		switch opt.Kind {
		case FlowRateLimit:
			if opt.RateLimit == nil {
				return nil, nil, fmt.Errorf("flow: composeFlow[%d]: rateLimit option missing config", i)
			}
			cur, err = RateLimit(cur, *opt.RateLimit)
		case FlowThrottle:
			if opt.Throttle == nil {
				return nil, nil, fmt.Errorf("flow: composeFlow[%d]: throttle option missing config", i)
			}
			var h *ThrottleHandle
			cur, h, err = Throttle(cur, *opt.Throttle)
			handles.Throttle[i] = h
		case FlowDebounce:
			if opt.Debounce == nil {
				return nil, nil, fmt.Errorf("flow: composeFlow[%d]: debounce option missing config", i)
			}
			var h *DebounceHandle
			cur, h, err = Debounce(cur, *opt.Debounce)
			handles.Debounce[i] = h
		case FlowCircuitBreaker:
			if opt.CircuitBreaker == nil {
				return nil, nil, fmt.Errorf("flow: composeFlow[%d]: circuitBreaker option missing config", i)
			}
			cur, err = CircuitBreaker(cur, *opt.CircuitBreaker)
		case FlowInflight:
			if opt.Inflight == nil {
				return nil, nil, fmt.Errorf("flow: composeFlow[%d]: inflight option missing config", i)
			}
			cur = WithInflightDedup(cur, *opt.Inflight)
		case FlowRetry:
			if opt.Retry == nil {
				return nil, nil, fmt.Errorf("flow: composeFlow[%d]: retry option missing config", i)
			}
			cur, err = Retry(cur, *opt.Retry)
		case FlowWithTimeout:
			if opt.WithTimeout == nil {
				return nil, nil, fmt.Errorf("flow: composeFlow[%d]: withTimeout option missing duration", i)
			}
			cur, err = WithTimeout(cur, *opt.WithTimeout)
		default:
			return nil, nil, fmt.Errorf("flow: composeFlow[%d]: unknown wrapper kind %q", i, opt.Kind)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	return cur, handles, nil
}
