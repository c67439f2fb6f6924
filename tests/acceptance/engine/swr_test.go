package acceptance_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fetchcore/fetchengine/pkg/fetchengine"
	"github.com/fetchcore/fetchengine/pkg/types"
)

var _ = Describe("Stale-while-revalidate cache", func() {
	It("serves a stale hit instantly, revalidates in the background, then refreshes the cached value", func() {
		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			jsonOK(w, http.StatusOK)
		}))
		defer srv.Close()

		staleIn := 50 * time.Millisecond
		e := newEngine(srv, withCache(&fetchengine.CachePolicy{
			Enabled: true,
			Methods: []types.Method{types.MethodGet},
			Rules: []types.PolicyRule{{
				Name:    "swr-demo",
				Match:   types.MatchCriteria{Is: stringPtr("/j")},
				TTL:     500 * time.Millisecond,
				StaleIn: &staleIn,
			}},
		}))
		defer e.Destroy()

		var missEvents, setEvents, staleEvents, revalEvents atomic.Int64
		e.On(types.EventFetchCacheMiss, func(types.Event) { missEvents.Add(1) }, eventsOptions())
		e.On(types.EventFetchCacheSet, func(types.Event) { setEvents.Add(1) }, eventsOptions())
		e.On(types.EventFetchCacheStale, func(types.Event) { staleEvents.Add(1) }, eventsOptions())
		e.On(types.EventFetchCacheRevalidate, func(types.Event) { revalEvents.Add(1) }, eventsOptions())

		_, ferr := e.Get("/j", nil).Wait()
		Expect(ferr).To(BeNil())
		Expect(missEvents.Load()).To(Equal(int64(1)))
		Eventually(func() int64 { return setEvents.Load() }, time.Second, 5*time.Millisecond).Should(Equal(int64(1)))

		time.Sleep(100 * time.Millisecond)

		start := time.Now()
		resp, ferr := e.Get("/j", nil).Wait()
		elapsed := time.Since(start)

		Expect(ferr).To(BeNil())
		Expect(resp.Data).To(Equal(map[string]any{"ok": true}))
		Expect(elapsed).To(BeNumerically("<", 50*time.Millisecond))
		Expect(staleEvents.Load()).To(Equal(int64(1)))

		Eventually(func() int64 { return revalEvents.Load() }, time.Second, 5*time.Millisecond).Should(Equal(int64(1)))
		Eventually(func() int64 { return setEvents.Load() }, time.Second, 5*time.Millisecond).Should(Equal(int64(2)))
		Eventually(func() int64 { return calls.Load() }, time.Second, 5*time.Millisecond).Should(Equal(int64(2)))
	})
})
