package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchcore/fetchengine/internal/cachestore"
	"github.com/fetchcore/fetchengine/internal/events"
	"github.com/fetchcore/fetchengine/internal/propstore"
	"github.com/fetchcore/fetchengine/pkg/types"
)

func newTestPipeline(t *testing.T, srv *httptest.Server, cfgFn func(*Config)) (*Pipeline, *events.Emitter) {
	t.Helper()
	emitter := events.New()
	headerStore := propstore.New(nil)
	paramStore := propstore.New(nil)
	cache := cachestore.New(nil)

	cfg := Config{
		HTTPClient:  srv.Client(),
		BaseURL:     srv.URL,
		HeaderStore: headerStore,
		ParamStore:  paramStore,
		Cache:       cache,
		Emitter:     emitter,
		DefaultType: types.ContentTypeJSON,
		DefaultRetry: &types.RetryConfig{Enabled: false},
	}
	if cfgFn != nil {
		cfgFn(&cfg)
	}
	return New(cfg), emitter
}

func TestPipeline_HappyGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p, emitter := newTestPipeline(t, srv, nil)

	var types_ []types.EventType
	var mu sync.Mutex
	emitter.On("*", func(e types.Event) {
		mu.Lock()
		types_ = append(types_, e.Type)
		mu.Unlock()
	}, events.Options{})

	call := p.Do(context.Background(), &types.RequestContext{Method: types.MethodGet, Path: "/x"})
	resp, ferr := call.Wait()
	require.Nil(t, ferr)
	require.NotNil(t, resp)
	assert.Equal(t, 200, resp.Status)
	assert.True(t, call.IsFinished())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, types_, types.EventFetchBefore)
	assert.Contains(t, types_, types.EventFetchAfter)
	assert.Contains(t, types_, types.EventFetchResponse)
}

func TestPipeline_RetryOnServerError(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n < 3 {
			w.WriteHeader(500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t, srv, func(c *Config) {
		c.DefaultRetry = &types.RetryConfig{Enabled: true, MaxAttempts: 3, BaseDelay: time.Millisecond, UseExponentialBackoff: true}
	})

	call := p.Do(context.Background(), &types.RequestContext{Method: types.MethodGet, Path: "/x"})
	resp, ferr := call.Wait()
	require.Nil(t, ferr)
	require.NotNil(t, resp)
	assert.Equal(t, int64(3), hits.Load())
}

func TestPipeline_DedupJoinsConcurrentCallers(t *testing.T) {
	var hits atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p, emitter := newTestPipeline(t, srv, func(c *Config) {
		c.DedupePolicy = PolicyConfig{Enabled: true}
	})

	var starts, joins atomic.Int64
	emitter.On(types.EventFetchDedupeStart, func(types.Event) { starts.Add(1) }, events.Options{})
	emitter.On(types.EventFetchDedupeJoin, func(types.Event) { joins.Add(1) }, events.Options{})

	const n = 4
	calls := make([]*Call, n)
	for i := 0; i < n; i++ {
		calls[i] = p.Do(context.Background(), &types.RequestContext{Method: types.MethodGet, Path: "/same"})
	}
	time.Sleep(20 * time.Millisecond)
	close(release)

	for _, c := range calls {
		resp, ferr := c.Wait()
		require.Nil(t, ferr)
		require.NotNil(t, resp)
	}

	assert.Equal(t, int64(1), hits.Load())
	assert.Equal(t, int64(1), starts.Load())
	assert.Equal(t, int64(n-1), joins.Load())
}

func TestPipeline_CacheHitAvoidsSecondFetch(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t, srv, func(c *Config) {
		c.CachePolicy = PolicyConfig{Enabled: true}
	})

	c1 := p.Do(context.Background(), &types.RequestContext{Method: types.MethodGet, Path: "/cached"})
	_, ferr1 := c1.Wait()
	require.Nil(t, ferr1)

	c2 := p.Do(context.Background(), &types.RequestContext{Method: types.MethodGet, Path: "/cached"})
	resp2, ferr2 := c2.Wait()
	require.Nil(t, ferr2)
	require.NotNil(t, resp2)

	assert.Equal(t, int64(1), hits.Load())
}

func TestPipeline_AbortYieldsSynthetic499(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()

	p, _ := newTestPipeline(t, srv, nil)

	call := p.Do(context.Background(), &types.RequestContext{Method: types.MethodGet, Path: "/slow"})
	time.Sleep(10 * time.Millisecond)
	call.Abort()

	_, ferr := call.Wait()
	require.NotNil(t, ferr)
	assert.True(t, ferr.Aborted)
	assert.Equal(t, types.StatusAbort, ferr.Status)
	assert.True(t, call.IsAborted())
	close(block)
}
