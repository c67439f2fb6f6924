package flow

import (
	"context"
	"sync"
	"sync/atomic"
)

// ChunkInfo describes a chunk boundary to onChunkStart/onChunkEnd (spec
// §4.D batch).
type ChunkInfo struct {
	Index             int
	Total             int
	ProcessedCount    int
	RemainingCount    int
	CompletionPercent float64
}

// BatchResult pairs one item's outcome, preserving input order.
type BatchResult[R any] struct {
	Result R
	Err    error
}

// BatchConfig configures Batch (spec §4.D / §4.E batch).
type BatchConfig[T, R any] struct {
	Concurrency  int
	FailureMode  string // "continue" (default) or "abort"
	Fn           func(ctx context.Context, item T, index int) (R, error)
	OnStart      func(total int)
	OnChunkStart func(info ChunkInfo)
	OnChunkEnd   func(info ChunkInfo)
	OnEnd        func(results []BatchResult[R])
	OnError      func(err error, index int, item T)
}

// Batch partitions items into chunks of cfg.Concurrency, runs each
// chunk concurrently and chunks themselves in sequence, aggregating
// results in input order. With FailureMode "abort", once any item in a
// chunk errors, no further chunks are started; items already running in
// that chunk still settle (spec: "in-flight items in the current chunk
// still settle").
func Batch[T, R any](ctx context.Context, items []T, cfg BatchConfig[T, R]) []BatchResult[R] {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	total := len(items)
	results := make([]BatchResult[R], total)

	safeCall(func() {
		if cfg.OnStart != nil {
			cfg.OnStart(total)
		}
	})

	var aborted atomic.Bool
	processed := 0
	totalChunks := (total + concurrency - 1) / concurrency

	for chunkStart := 0; chunkStart < total; chunkStart += concurrency {
		if aborted.Load() {
			break
		}
		chunkEnd := chunkStart + concurrency
		if chunkEnd > total {
			chunkEnd = total
		}
		chunkItems := items[chunkStart:chunkEnd]
		chunkIndex := chunkStart / concurrency

		safeCall(func() {
			if cfg.OnChunkStart != nil {
				cfg.OnChunkStart(ChunkInfo{
					Index: chunkIndex, Total: totalChunks,
					ProcessedCount: processed, RemainingCount: total - processed,
					CompletionPercent: completionPercent(processed, total),
				})
			}
		})

		var wg sync.WaitGroup
		for offset, item := range chunkItems {
			idx := chunkStart + offset
			it := item
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := cfg.Fn(ctx, it, idx)
				results[idx] = BatchResult[R]{Result: r, Err: err}
				if err != nil {
					safeCall(func() {
						if cfg.OnError != nil {
							cfg.OnError(err, idx, it)
						}
					})
					if cfg.FailureMode == "abort" {
						aborted.Store(true)
					}
				}
			}()
		}
		wg.Wait()
		processed += len(chunkItems)

		safeCall(func() {
			if cfg.OnChunkEnd != nil {
				cfg.OnChunkEnd(ChunkInfo{
					Index: chunkIndex, Total: totalChunks,
					ProcessedCount: processed, RemainingCount: total - processed,
					CompletionPercent: completionPercent(processed, total),
				})
			}
		})
	}

	safeCall(func() {
		if cfg.OnEnd != nil {
			cfg.OnEnd(results)
		}
	})
	return results
}

func completionPercent(processed, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(processed) / float64(total) * 100
}
