package acceptance_test

import (
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fetchcore/fetchengine/pkg/types"
)

var _ = Describe("Retry on 400 with shouldRetry", func() {
	It("retries exactly maxAttempts times and rejects with the final status", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		e := newEngine(srv, withRetry(&types.RetryConfig{
			Enabled:     true,
			MaxAttempts: 3,
			BaseDelay:   10 * time.Millisecond,
			ShouldRetry: func(ferr *types.FetchError) (bool, time.Duration, bool) {
				return ferr.Status == http.StatusBadRequest, 0, false
			},
		}))
		defer e.Destroy()

		var errorEvents, retryEvents []types.Event
		e.On(types.EventFetchError, func(ev types.Event) { errorEvents = append(errorEvents, ev) }, eventsOptions())
		e.On(types.EventFetchRetry, func(ev types.Event) { retryEvents = append(retryEvents, ev) }, eventsOptions())

		_, ferr := e.Get("/j", nil).Wait()

		Expect(ferr).NotTo(BeNil())
		Expect(ferr.Status).To(Equal(http.StatusBadRequest))
		Expect(ferr.Attempt).To(Equal(3))

		Expect(errorEvents).To(HaveLen(3))
		for i, ev := range errorEvents {
			Expect(ev.Err).NotTo(BeNil())
			Expect(ev.Err.Attempt).To(Equal(i + 1))
		}
		Expect(retryEvents).To(HaveLen(2))
	})
})
