package acceptance_test

import (
	"context"
	"errors"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fetchcore/fetchengine/internal/flow"
)

var _ = Describe("Batch abort semantics", func() {
	It("stops after the failing item and invokes onError exactly once", func() {
		var calls atomic.Int64
		var onErrorCalls atomic.Int64
		boom := errors.New("boom at 5")

		items := make([]int, 10)
		for i := range items {
			items[i] = i
		}

		results := flow.Batch(context.Background(), items, flow.BatchConfig[int, int]{
			Concurrency: 2,
			FailureMode: "abort",
			OnError: func(err error, index int, item int) { onErrorCalls.Add(1) },
			Fn: func(ctx context.Context, n int, index int) (int, error) {
				calls.Add(1)
				if n == 5 {
					return 0, boom
				}
				return n, nil
			},
		})

		Expect(calls.Load()).To(Equal(int64(6)))
		Expect(onErrorCalls.Load()).To(Equal(int64(1)))

		var sawError bool
		for _, r := range results {
			if r.Err != nil {
				sawError = true
				Expect(errors.Is(r.Err, boom)).To(BeTrue())
			}
		}
		Expect(sawError).To(BeTrue())
	})
})
