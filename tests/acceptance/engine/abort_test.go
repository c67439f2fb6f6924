package acceptance_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fetchcore/fetchengine/pkg/fetchengine"
	"github.com/fetchcore/fetchengine/pkg/types"
)

var _ = Describe("Abort via a caller-shared cancellation context", func() {
	It("rejects every caller sharing the context with a synthetic 499", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
				jsonOK(w, http.StatusOK)
			}
		}))
		defer srv.Close()

		e1 := newEngine(srv)
		e2 := newEngine(srv)
		defer e1.Destroy()
		defer e2.Destroy()

		ctx, cancel := context.WithCancel(context.Background())
		opts := &fetchengine.RequestOptions{Context: ctx}

		call1 := e1.Get("/slow", opts)
		call2 := e2.Get("/slow", opts)

		time.Sleep(10 * time.Millisecond)
		cancel()

		var wg sync.WaitGroup
		var ferr1, ferr2 *types.FetchError
		wg.Add(2)
		go func() { defer wg.Done(); _, ferr1 = call1.Wait() }()
		go func() { defer wg.Done(); _, ferr2 = call2.Wait() }()
		wg.Wait()

		for _, ferr := range []*types.FetchError{ferr1, ferr2} {
			Expect(ferr).NotTo(BeNil())
			Expect(ferr.Status).To(Equal(types.StatusAbort))
			Expect(ferr.Aborted).To(BeTrue())
		}

		Expect(call1.IsAborted()).To(BeTrue())
		Expect(call2.IsAborted()).To(BeTrue())
	})
})
