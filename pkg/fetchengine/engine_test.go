package fetchengine

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchcore/fetchengine/internal/events"
	"github.com/fetchcore/fetchengine/pkg/types"
)

func TestNew_RejectsMissingBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	var cfgErr *types.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNew_RejectsMalformedBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not-a-url"})
	require.Error(t, err)
}

func TestNew_RejectsUnknownDefaultType(t *testing.T) {
	_, err := New(Config{BaseURL: "https://example.test", DefaultType: "weird"})
	require.Error(t, err)
}

func TestNew_RejectsRetryEnabledWithoutMaxAttempts(t *testing.T) {
	_, err := New(Config{BaseURL: "https://example.test", Retry: &types.RetryConfig{Enabled: true}})
	require.Error(t, err)
}

func TestEngine_GetHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e, err := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	defer e.Destroy()

	call := e.Get("/things", nil)
	resp, ferr := call.Wait()
	require.Nil(t, ferr)
	require.NotNil(t, resp)
	assert.Equal(t, 200, resp.Status)
}

func TestEngine_HeaderAddRemoveAndHas(t *testing.T) {
	e, err := New(Config{BaseURL: "https://example.test"})
	require.NoError(t, err)
	defer e.Destroy()

	require.NoError(t, e.AddHeader(map[string]string{"X-Trace": "1"}, ""))
	assert.True(t, e.HasHeader("X-Trace", types.MethodGet))

	e.RmHeader([]string{"X-Trace"}, "")
	assert.False(t, e.HasHeader("X-Trace", types.MethodGet))
}

func TestEngine_StateSetAndReset(t *testing.T) {
	e, err := New(Config{BaseURL: "https://example.test", InitialState: map[string]int{"n": 1}})
	require.NoError(t, err)
	defer e.Destroy()

	e.SetState(map[string]int{"n": 2})
	assert.Equal(t, map[string]int{"n": 2}, e.GetState())

	e.ResetState()
	assert.Equal(t, map[string]int{"n": 1}, e.GetState())
}

func TestEngine_ChangeBaseUrlRejectsInvalid(t *testing.T) {
	e, err := New(Config{BaseURL: "https://example.test"})
	require.NoError(t, err)
	defer e.Destroy()

	assert.Error(t, e.ChangeBaseUrl("nope"))
	assert.NoError(t, e.ChangeBaseUrl("https://other.test"))
}

func TestEngine_CacheAdminReflectsStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	e, err := New(Config{
		BaseURL: srv.URL, HTTPClient: srv.Client(),
		Cache: &CachePolicy{Enabled: true},
	})
	require.NoError(t, err)
	defer e.Destroy()

	_, ferr := e.Get("/cached", nil).Wait()
	require.Nil(t, ferr)

	size, _ := e.CacheStats()
	assert.Equal(t, 1, size)

	n := e.InvalidatePath("")
	assert.Equal(t, 1, n)

	size, _ = e.CacheStats()
	assert.Equal(t, 0, size)
}

func TestEngine_DestroyRejectsFurtherCalls(t *testing.T) {
	e, err := New(Config{BaseURL: "https://example.test"})
	require.NoError(t, err)

	e.Destroy()

	call := e.Get("/x", nil)
	_, ferr := call.Wait()
	require.NotNil(t, ferr)
	assert.True(t, ferr.Aborted)
	assert.True(t, call.IsAborted())
}

func TestEngine_OnOffSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	e, err := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	defer e.Destroy()

	var seen int
	handle := e.On(types.EventFetchResponse, func(types.Event) { seen++ }, events.Options{})
	_, _ = e.Get("/x", nil).Wait()
	e.Off(handle)
	_, _ = e.Get("/x", nil).Wait()

	assert.Equal(t, 1, seen)
}

func TestEngine_RequestOptionsTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	e, err := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	defer e.Destroy()

	_, ferr := e.Get("/slow", &RequestOptions{Timeout: 10 * time.Millisecond}).Wait()
	require.NotNil(t, ferr)
	assert.Equal(t, types.ErrorKindTimeout, ferr.Kind)
}
