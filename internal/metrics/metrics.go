package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the agent
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // DispatchOutcomes counts dispatch attempts by alert type and outcome
    DispatchOutcomes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "dispatch_outcomes_total", Help: "Dispatch attempts by alert type and outcome."},
        []string{"alert_type", "outcome"},
    )
    // GPSAcquisition tracks emergency fix acquisition latency in seconds
    GPSAcquisition = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "gps_acquisition_seconds", Help: "Emergency GPS fix acquisition latency.", Buckets: []float64{0.5, 1, 2, 5, 10, 15, 20}},
        []string{"result"},
    )
    // QueueDrains counts retry drain item results
    QueueDrains = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "retry_drain_items_total", Help: "Retry drain item outcomes."},
        []string{"result"},
    )
    // QueueDepth tracks the persisted retry queue length after mutations
    QueueDepth = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "retry_queue_depth", Help: "Current offline retry queue length."},
    )
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(DispatchOutcomes)
        Registry.MustRegister(GPSAcquisition)
        Registry.MustRegister(QueueDrains)
        Registry.MustRegister(QueueDepth)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
