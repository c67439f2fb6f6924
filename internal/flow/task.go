// Package flow implements the flow-control toolkit (spec §4.D): rate
// limiting, throttling, debouncing, circuit breaking, in-flight dedup,
// batching and composeFlow, sharing the single-flight and
// wrapping-guard machinery the spec asks for. Grounded on the teacher's
// internal/cachedaemon.Distributor for the backoff/retry shape and on
// pkg/pattern for the "reject re-wrapping, allow cross-wrapping" guard
// idea (a marker checked before each transform), generalized here to an
// explicit tag set since Go has no prototype markers.
//
// The source spec models a single-threaded cooperative runtime where
// shared state needs no locking. Go has real concurrency, so every
// primitive here is guarded by its own mutex; this is a deliberate,
// documented deviation (see SPEC_FULL.md §5).
package flow

import (
	"context"
	"fmt"
)

// Task is the opaque wrapper every primitive returns: the same call
// signature as the input (a variadic producer), tagged with the set of
// primitives already applied to it. Re-wrapping with a primitive already
// present in the tag set is rejected (spec §4.D: "a value already
// wrapped by the same primitive must be rejected").
type Task struct {
	call func(ctx context.Context, args ...any) (any, error)
	tags map[string]bool
}

// NewTask wraps a plain producer function as the innermost Task.
func NewTask(fn func(ctx context.Context, args ...any) (any, error)) *Task {
	return &Task{call: fn, tags: map[string]bool{}}
}

// Run invokes the (possibly many times wrapped) task.
func (t *Task) Run(ctx context.Context, args ...any) (any, error) {
	return t.call(ctx, args...)
}

// layer produces the next Task in the chain, rejecting if tag is
// already present and otherwise carrying forward the accumulated tag
// set plus tag itself.
func (t *Task) layer(tag string, call func(ctx context.Context, args ...any) (any, error)) (*Task, error) {
	if t.tags[tag] {
		return nil, fmt.Errorf("flow: %s is already applied to this task", tag)
	}
	tags := make(map[string]bool, len(t.tags)+1)
	for k := range t.tags {
		tags[k] = true
	}
	tags[tag] = true
	return &Task{call: call, tags: tags}, nil
}

// safeCall runs hook and swallows any panic, matching the spec's
// "hooks that throw must not disturb state machines" requirement across
// every primitive.
func safeCall(hook func()) {
	if hook == nil {
		return
	}
	defer func() { _ = recover() }()
	hook()
}
