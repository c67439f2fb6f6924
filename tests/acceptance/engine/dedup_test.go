package acceptance_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fetchcore/fetchengine/pkg/fetchengine"
	"github.com/fetchcore/fetchengine/pkg/types"
)

var _ = Describe("In-flight dedup", func() {
	It("collapses concurrent identical requests into one upstream call", func() {
		var upstreamCalls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			upstreamCalls.Add(1)
			time.Sleep(20 * time.Millisecond)
			jsonOK(w, http.StatusOK)
		}))
		defer srv.Close()

		e := newEngine(srv, withDedupe(&fetchengine.DedupePolicy{
			Enabled: true,
			Methods: []types.Method{types.MethodGet},
		}))
		defer e.Destroy()

		var startEvents, joinEvents atomic.Int64
		e.On(types.EventFetchDedupeStart, func(types.Event) { startEvents.Add(1) }, eventsOptions())
		e.On(types.EventFetchDedupeJoin, func(types.Event) { joinEvents.Add(1) }, eventsOptions())

		var wg sync.WaitGroup
		responses := make([]*types.Response, 3)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resp, ferr := e.Get("/j", nil).Wait()
				Expect(ferr).To(BeNil())
				responses[i] = resp
			}(i)
		}
		wg.Wait()

		Expect(upstreamCalls.Load()).To(Equal(int64(1)))
		Expect(startEvents.Load()).To(Equal(int64(1)))
		Expect(joinEvents.Load()).To(Equal(int64(2)))

		for _, resp := range responses {
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(resp.Data).To(Equal(map[string]any{"ok": true}))
		}
	})
})
