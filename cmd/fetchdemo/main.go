// Command fetchdemo runs a tiny chi-routed origin server (/echo/{name},
// /slow, /flaky) and a Prometheus metrics endpoint on :9090. It also
// builds a FetchEngine (retry, logging, metrics) pointed at the origin,
// but no route sends requests through that engine: curl against the
// routes reaches the origin directly. Grounded on
// the go-chi/chi/v5 router usage in jordigilh-kubernaut's gateway tests
// and on the teacher's flag-based main() bootstrap (cmd/edge-gateway).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fetchcore/fetchengine/internal/logging"
	"github.com/fetchcore/fetchengine/internal/metrics"
	"github.com/fetchcore/fetchengine/pkg/fetchengine"
	"github.com/fetchcore/fetchengine/pkg/types"
)

func main() {
	addr := flag.String("addr", ":8089", "address the demo origin listens on")
	flag.Parse()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	var flakyCalls atomic.Int64
	router.Get("/echo/{name}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"name": chi.URLParam(r, "name")})
	})
	router.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		writeJSON(w, http.StatusOK, map[string]string{"status": "eventually"})
	})
	router.Get("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if flakyCalls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv := &http.Server{Addr: *addr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("demo origin: %v", err)
		}
	}()

	logger := logging.Default()
	collector := metrics.New("fetchdemo", nil)

	engine, err := fetchengine.New(fetchengine.Config{
		BaseURL: "http://127.0.0.1" + *addr,
		Logger:  logger,
		Metrics: collector,
		Retry: &types.RetryConfig{
			Enabled: true, MaxAttempts: 3, BaseDelay: 100 * time.Millisecond,
			MaxDelay: 2 * time.Second, UseExponentialBackoff: true,
		},
	})
	if err != nil {
		log.Fatalf("fetchengine: %v", err)
	}
	defer engine.Destroy()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", collector.Handler())
	go func() { _ = http.ListenAndServe(":9090", metricsMux) }()

	fmt.Println("fetchdemo origin listening on", *addr, "— metrics on :9090/metrics")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
