package main

import (
    "fmt"
    "log"
    "net/http"
    "os"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "quicksecure/internal/api"
    "quicksecure/internal/config"
    "quicksecure/internal/metrics"
)

func main() {
    cfg, err := config.Load(os.Getenv("QS_CONFIG"))
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    srvDeps, err := api.NewServer(cfg)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }

    mux := http.NewServeMux()

    // Dispatch pipeline
    mux.HandleFunc("/v1/dispatch", srvDeps.DispatchHandler)
    mux.HandleFunc("/v1/cancel", srvDeps.CancelHandler)

    // Offline retry queue
    mux.HandleFunc("/v1/queue", srvDeps.QueueHandler)
    mux.HandleFunc("/v1/queue/drain", srvDeps.QueueHandler)

    // Backend alert reads
    mux.HandleFunc("/v1/alerts", srvDeps.AlertsHandler)
    mux.HandleFunc("/v1/alerts/latest", srvDeps.AlertsHandler)

    // Dispatch lifecycle stream (SSE)
    mux.HandleFunc("/v1/events/stream", srvDeps.EventsStreamHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
    mux.HandleFunc("/debugz", srvDeps.DebugJSON)

    // Metrics
    metrics.RegisterDefault()
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":" + cfg.Port

    srv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(metricsMiddleware(mux)),
        ReadHeaderTimeout: 5 * time.Second,
    }

    // Start the periodic offline-queue drain
    srvDeps.Dispatch.StartRetryProcess()
    defer srvDeps.Dispatch.StopRetryProcess()

    log.Printf("dispatch agent listening on %s", addr)
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (sr *statusRecorder) WriteHeader(code int) {
    sr.status = code
    sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
    if f, ok := sr.ResponseWriter.(http.Flusher); ok {
        f.Flush()
    }
}

func metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        status := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
    })
}

// Helper to satisfy reference and avoid unused imports in stubs
var _ = fmt.Sprintf
