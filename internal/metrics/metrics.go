// Package metrics provides Prometheus metrics for the runvault server.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry for all runvault metrics.
var Registry = prometheus.NewRegistry()

func init() {
	// Register standard Go metrics
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns an HTTP handler serving the runvault registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// vaultMetricsOnce ensures metrics are only initialized once.
var vaultMetricsOnce sync.Once

// vaultMetricsInstance is the singleton instance of vault metrics.
var vaultMetricsInstance *VaultMetrics

// VaultMetrics holds all Prometheus metrics for the vault service.
type VaultMetrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec   // runvault_requests_total{operation,status}
	RequestDuration *prometheus.HistogramVec // runvault_request_duration_seconds{operation}

	// Transfer metrics
	BytesUploaded   prometheus.Counter // runvault_bytes_uploaded_total
	BytesDownloaded prometheus.Counter // runvault_bytes_downloaded_total

	// Storage metrics
	ObjectsTotal  prometheus.Gauge // runvault_objects_total
	StorageBytes  prometheus.Gauge // runvault_storage_bytes
	CapacityBytes prometheus.Gauge // runvault_capacity_bytes (0 = unknown)
	FreeBytes     prometheus.Gauge // runvault_free_bytes

	// Share link metrics
	SharesIssued   prometheus.Counter // runvault_shares_issued_total
	SharesRedeemed prometheus.Counter // runvault_shares_redeemed_total

	// Event stream metrics
	EventClients prometheus.Gauge // runvault_event_clients

	// Server info (constant value 1, labels carry the facts)
	ServerInfo *prometheus.GaugeVec // labels: server, version
}

// InitVaultMetrics initializes all vault metrics.
// Metrics are only registered once; subsequent calls return the same instance.
func InitVaultMetrics(registry prometheus.Registerer) *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		if registry == nil {
			registry = Registry
		}
		vaultMetricsInstance = &VaultMetrics{
			RequestsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "runvault_requests_total",
				Help: "Total vault requests by operation and status",
			}, []string{"operation", "status"}),

			RequestDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
				Name:    "runvault_request_duration_seconds",
				Help:    "Vault request duration in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),

			BytesUploaded: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "runvault_bytes_uploaded_total",
				Help: "Total payload bytes written to the vault",
			}),

			BytesDownloaded: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "runvault_bytes_downloaded_total",
				Help: "Total payload bytes read from the vault",
			}),

			ObjectsTotal: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
				Name: "runvault_objects_total",
				Help: "Total number of complete objects in the vault",
			}),

			StorageBytes: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
				Name: "runvault_storage_bytes",
				Help: "Total bytes stored in the vault (data and meta)",
			}),

			CapacityBytes: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
				Name: "runvault_capacity_bytes",
				Help: "Capacity in bytes of the volume backing the vault (0 = unknown)",
			}),

			FreeBytes: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
				Name: "runvault_free_bytes",
				Help: "Free bytes on the volume backing the vault",
			}),

			SharesIssued: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "runvault_shares_issued_total",
				Help: "Total share links issued",
			}),

			SharesRedeemed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "runvault_shares_redeemed_total",
				Help: "Total share links redeemed",
			}),

			EventClients: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
				Name: "runvault_event_clients",
				Help: "Connected event stream clients",
			}),

			ServerInfo: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
				Name: "runvault_server_info",
				Help: "Server information (value is always 1)",
			}, []string{"server", "version"}),
		}
	})

	return vaultMetricsInstance
}

// GetVaultMetrics returns the singleton vault metrics instance.
// Returns nil if metrics have not been initialized.
func GetVaultMetrics() *VaultMetrics {
	return vaultMetricsInstance
}

// SetServerInfo publishes the server identity labels.
func (m *VaultMetrics) SetServerInfo(server, version string) {
	m.ServerInfo.WithLabelValues(server, version).Set(1)
}

// RecordRequest records a request metric.
func (m *VaultMetrics) RecordRequest(operation string, status string, durationSeconds float64) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordUpload records payload bytes written.
func (m *VaultMetrics) RecordUpload(bytes int64) {
	m.BytesUploaded.Add(float64(bytes))
}

// RecordDownload records payload bytes read.
func (m *VaultMetrics) RecordDownload(bytes int64) {
	m.BytesDownloaded.Add(float64(bytes))
}

// UpdateStorageMetrics updates storage-related gauges.
func (m *VaultMetrics) UpdateStorageMetrics(objects int, storageBytes int64, capacityBytes, freeBytes uint64) {
	m.ObjectsTotal.Set(float64(objects))
	m.StorageBytes.Set(float64(storageBytes))
	m.CapacityBytes.Set(float64(capacityBytes))
	m.FreeBytes.Set(float64(freeBytes))
}
