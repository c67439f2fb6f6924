package acceptance_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/fetchcore/fetchengine/internal/events"
	"github.com/fetchcore/fetchengine/pkg/fetchengine"
	"github.com/fetchcore/fetchengine/pkg/types"
)

// eventsOptions is the zero-value events.Options, named for readability
// at call sites that just want a plain (non-once) subscription.
func eventsOptions() events.Options { return events.Options{} }

// jsonOK writes {"ok":true} with the given status.
func jsonOK(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// newEngine builds a FetchEngine against srv with the given mutators
// applied to the config before construction.
func newEngine(srv *httptest.Server, mutators ...func(*fetchengine.Config)) *fetchengine.Engine {
	cfg := fetchengine.Config{BaseURL: srv.URL}
	for _, m := range mutators {
		m(&cfg)
	}
	e, err := fetchengine.New(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// withHeader sets a default header on the engine config.
func withHeader(k, v string) func(*fetchengine.Config) {
	return func(c *fetchengine.Config) {
		if c.Headers == nil {
			c.Headers = map[string]string{}
		}
		c.Headers[k] = v
	}
}

// withRetry installs a retry policy.
func withRetry(r *types.RetryConfig) func(*fetchengine.Config) {
	return func(c *fetchengine.Config) { c.Retry = r }
}

// withCache installs a cache policy.
func withCache(p *fetchengine.CachePolicy) func(*fetchengine.Config) {
	return func(c *fetchengine.Config) { c.Cache = p }
}

// withDedupe installs a dedupe policy.
func withDedupe(p *fetchengine.DedupePolicy) func(*fetchengine.Config) {
	return func(c *fetchengine.Config) { c.Dedupe = p }
}

// stringPtr is a small helper for *string rule fields.
func stringPtr(s string) *string { return &s }
