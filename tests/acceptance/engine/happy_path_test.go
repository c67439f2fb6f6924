package acceptance_test

import (
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fetchcore/fetchengine/pkg/types"
)

var _ = Describe("Happy GET with defaults", func() {
	It("fires before/after/response in order and carries the default header upstream", func() {
		var gotHeader string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Get("X")
			jsonOK(w, http.StatusOK)
		}))
		defer srv.Close()

		e := newEngine(srv, withHeader("X", "1"))
		defer e.Destroy()

		var seen []types.EventType
		e.On("*", func(ev types.Event) { seen = append(seen, ev.Type) }, eventsOptions())

		resp, ferr := e.Get("/j", nil).Wait()
		Expect(ferr).To(BeNil())

		By("checking the response envelope")
		Expect(resp.Status).To(Equal(http.StatusOK))
		Expect(resp.Data).To(Equal(map[string]any{"ok": true}))
		Expect(resp.Headers.Get("Content-Type")).To(ContainSubstring("application/json"))

		By("checking upstream received the default header")
		Expect(gotHeader).To(Equal("1"))

		By("checking event order")
		Expect(seen).To(Equal([]types.EventType{
			types.EventFetchBefore,
			types.EventFetchAfter,
			types.EventFetchResponse,
		}))
	})
})
