// Package metrics provides Prometheus-based metrics collection for riskscan.
// It exposes counters, histograms, and gauges for scan execution, document
// store operations, HTTP traffic, and runtime health.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all riskscan metrics
	namespace = "riskscan"

	// Subsystems
	subsystemScan   = "scan"
	subsystemStore  = "store"
	subsystemAPI    = "api"
	subsystemSystem = "system"
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	// Scan metrics
	scansTotal   *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	scanErrors   *prometheus.CounterVec
	hostsScanned *prometheus.CounterVec
	portsFound   *prometheus.CounterVec
	activeScans  prometheus.Gauge

	// Store metrics
	storeOps         *prometheus.CounterVec
	storeOpDuration  *prometheus.HistogramVec
	storeErrors      *prometheus.CounterVec
	storeConnections prometheus.Gauge

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// New creates a metrics instance with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		startTime: time.Now(),
		registry:  registry,
	}

	m.initScanMetrics()
	m.initStoreMetrics()
	m.initAPIMetrics()
	m.initSystemMetrics()
	m.registerMetrics()

	// Standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// initScanMetrics initializes scan-related metrics.
func (m *Metrics) initScanMetrics() {
	m.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scans by profile and final status",
		},
		[]string{"profile", "status"},
	)

	m.scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of scan executions in seconds",
			Buckets:   []float64{1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 1800.0, 2400.0},
		},
		[]string{"profile"},
	)

	m.scanErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "errors_total",
			Help:      "Total number of scan errors by profile and error code",
		},
		[]string{"profile", "error_code"},
	)

	m.hostsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "hosts_total",
			Help:      "Total number of hosts observed by host status",
		},
		[]string{"profile", "host_status"},
	)

	m.portsFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "ports_total",
			Help:      "Total number of ports observed by port state",
		},
		[]string{"profile", "port_state"},
	)

	m.activeScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active",
			Help:      "Number of currently running scans",
		},
	)
}

// initStoreMetrics initializes document-store metrics.
func (m *Metrics) initStoreMetrics() {
	m.storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "operations_total",
			Help:      "Total number of store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.storeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation"},
	)

	m.storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "errors_total",
			Help:      "Total number of store errors by operation",
		},
		[]string{"operation", "error_code"},
	)

	m.storeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "connections_active",
			Help:      "Number of active store connections",
		},
	)
}

// initAPIMetrics initializes HTTP API metrics.
func (m *Metrics) initAPIMetrics() {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method", "path"},
	)

	m.httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "errors_total",
			Help:      "Total number of HTTP errors by method, path and error type",
		},
		[]string{"method", "path", "error_type"},
	)
}

// initSystemMetrics initializes runtime metrics.
func (m *Metrics) initSystemMetrics() {
	m.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	m.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	m.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the registry.
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.scansTotal)
	m.registry.MustRegister(m.scanDuration)
	m.registry.MustRegister(m.scanErrors)
	m.registry.MustRegister(m.hostsScanned)
	m.registry.MustRegister(m.portsFound)
	m.registry.MustRegister(m.activeScans)

	m.registry.MustRegister(m.storeOps)
	m.registry.MustRegister(m.storeOpDuration)
	m.registry.MustRegister(m.storeErrors)
	m.registry.MustRegister(m.storeConnections)

	m.registry.MustRegister(m.httpRequests)
	m.registry.MustRegister(m.httpDuration)
	m.registry.MustRegister(m.httpErrors)

	m.registry.MustRegister(m.memoryUsage)
	m.registry.MustRegister(m.goroutines)
	m.registry.MustRegister(m.uptime)
}

// Registry returns the Prometheus registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Scan metrics

// IncrementScansTotal increments the total scan counter.
func (m *Metrics) IncrementScansTotal(profile, status string) {
	m.scansTotal.WithLabelValues(profile, status).Inc()
}

// RecordScanDuration records a scan execution duration.
func (m *Metrics) RecordScanDuration(profile string, duration time.Duration) {
	m.scanDuration.WithLabelValues(profile).Observe(duration.Seconds())
}

// IncrementScanErrors increments the scan error counter.
func (m *Metrics) IncrementScanErrors(profile, errorCode string) {
	m.scanErrors.WithLabelValues(profile, errorCode).Inc()
}

// IncrementHostsScanned adds to the hosts observed counter.
func (m *Metrics) IncrementHostsScanned(profile, hostStatus string, count int) {
	m.hostsScanned.WithLabelValues(profile, hostStatus).Add(float64(count))
}

// IncrementPortsFound adds to the ports observed counter.
func (m *Metrics) IncrementPortsFound(profile, portState string, count int) {
	m.portsFound.WithLabelValues(profile, portState).Add(float64(count))
}

// ScanStarted marks a scan as active.
func (m *Metrics) ScanStarted() {
	m.activeScans.Inc()
}

// ScanFinished marks a scan as no longer active.
func (m *Metrics) ScanFinished() {
	m.activeScans.Dec()
}

// Store metrics

// RecordStoreOperation records a store operation with its duration and outcome.
func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.storeOps.WithLabelValues(operation, status).Inc()
	m.storeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementStoreErrors increments the store error counter.
func (m *Metrics) IncrementStoreErrors(operation, errorCode string) {
	m.storeErrors.WithLabelValues(operation, errorCode).Inc()
}

// SetStoreConnections sets the number of active store connections.
func (m *Metrics) SetStoreConnections(count int) {
	m.storeConnections.Set(float64(count))
}

// API metrics

// IncrementHTTPRequests increments the HTTP request counter.
func (m *Metrics) IncrementHTTPRequests(method, path, status string) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records an HTTP request duration.
func (m *Metrics) RecordHTTPDuration(method, path string, duration time.Duration) {
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPErrors increments the HTTP error counter.
func (m *Metrics) IncrementHTTPErrors(method, path, errorType string) {
	m.httpErrors.WithLabelValues(method, path, errorType).Inc()
}

// System metrics

// UpdateSystemMetrics refreshes runtime gauges with current values.
func (m *Metrics) UpdateSystemMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.memoryUsage.Set(float64(memStats.Alloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.uptime.Set(time.Since(m.startTime).Seconds())
	m.lastUpdate = time.Now()
}

// Uptime returns the application uptime.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// LastUpdate returns the last system metrics refresh time.
func (m *Metrics) LastUpdate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdate
}

// StartPeriodicUpdates refreshes system metrics on the given interval until
// the context is canceled.
func (m *Metrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateSystemMetrics()
		}
	}
}

// Global instance for easy access
var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Global returns the process-wide metrics instance.
func Global() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = New()
	})
	return globalMetrics
}
