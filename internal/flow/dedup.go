package flow

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fetchcore/fetchengine/internal/fingerprint"
)

// InflightConfig configures WithInflightDedup (spec §4.D
// withInflightDedup). This is also RequestPipeline's dedup leg (spec
// §4.G): the pipeline supplies GenerateKey = its own DedupeKey and
// ShouldDedupe = the resolved dedupe policy.
type InflightConfig struct {
	GenerateKey  func(args []any) string
	ShouldDedupe func(args []any) bool
	OnStart      func(key string)
	OnJoin       func(key string)
	OnResolve    func(key string, value any)
	OnReject     func(key string, err error)
}

// WithInflightDedup wraps task with a single-flight table keyed by
// cfg.GenerateKey (default: KeyFingerprint over args). Concurrent
// callers sharing a key all observe the one producer invocation; the
// first arrival fires onStart, later arrivals fire onJoin, and the
// settling call fires onResolve/onReject before the table entry is
// removed; joiners fire only onJoin. Callers for whom cfg.ShouldDedupe
// returns false bypass the table and fire no hooks; a panicking
// ShouldDedupe counts as true and the call goes through the table.
func WithInflightDedup(task *Task, cfg InflightConfig) *Task {
	generateKey := cfg.GenerateKey
	if generateKey == nil {
		generateKey = func(args []any) string { return fingerprint.Hash(fingerprint.Of(args, nil)) }
	}

	var g singleflight.Group
	var mu sync.Mutex
	inflightKeys := map[string]bool{}

	wrapped, err := task.layer("inflight", func(ctx context.Context, args ...any) (any, error) {
		if cfg.ShouldDedupe != nil {
			// A throwing shouldDedupe falls back to dedup (runs through the
			// table); only an explicit false bypasses it.
			dedupeOK := true
			func() {
				defer func() { _ = recover() }()
				dedupeOK = cfg.ShouldDedupe(args)
			}()
			if !dedupeOK {
				return task.call(ctx, args...)
			}
		}

		key := generateKey(args)

		mu.Lock()
		isJoiner := inflightKeys[key]
		if !isJoiner {
			inflightKeys[key] = true
		}
		mu.Unlock()

		if isJoiner {
			safeCall(func() {
				if cfg.OnJoin != nil {
					cfg.OnJoin(key)
				}
			})
		} else {
			safeCall(func() {
				if cfg.OnStart != nil {
					cfg.OnStart(key)
				}
			})
		}

		val, err, _ := g.Do(key, func() (any, error) {
			return task.call(ctx, args...)
		})

		if !isJoiner {
			if err != nil {
				safeCall(func() {
					if cfg.OnReject != nil {
						cfg.OnReject(key, err)
					}
				})
			} else {
				safeCall(func() {
					if cfg.OnResolve != nil {
						cfg.OnResolve(key, val)
					}
				})
			}

			mu.Lock()
			delete(inflightKeys, key)
			mu.Unlock()
		}

		return val, err
	})
	if err != nil {
		// "inflight" can only collide with itself, and this call site
		// never re-wraps the same Task twice; unreachable in practice.
		panic(err)
	}
	return wrapped
}
