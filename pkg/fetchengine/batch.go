package fetchengine

import (
	"context"

	"github.com/fetchcore/fetchengine/internal/flow"
)

// Batch re-exports FlowPrimitives' batch (spec §4.D) at the package
// level: Go forbids type parameters on methods, so this sits alongside
// Engine rather than on it.
func Batch[T, R any](ctx context.Context, items []T, cfg flow.BatchConfig[T, R]) []flow.BatchResult[R] {
	return flow.Batch(ctx, items, cfg)
}
