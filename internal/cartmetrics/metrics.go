// Package cartmetrics provides Prometheus metrics for the cartridge
// container: facade operations, allocator space/fragmentation, and buffer
// pool hit rate.
package cartmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a cartridge container. A nil
// *Metrics is valid everywhere it's accepted: every Record/Update method
// on a nil receiver is a no-op, so metrics are always optional.
type Metrics struct {
	// Facade operation metrics.
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Allocator metrics.
	AllocationsTotal   *prometheus.CounterVec
	GrowEventsTotal     prometheus.Counter
	FragmentationScore  prometheus.Gauge
	TotalBlocks         prometheus.Gauge
	FreeBlocks          prometheus.Gauge

	// Buffer pool metrics.
	BufferPoolHits   prometheus.Counter
	BufferPoolMisses prometheus.Counter

	ContainerUptimeSeconds prometheus.Gauge
	containerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics for a
// container on the default Prometheus registry, so it can be called only
// once per process; a second call panics on duplicate registration.
func NewMetrics() *Metrics {
	m := &Metrics{containerStartTime: time.Now()}

	m.OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartridge_operations_total",
			Help: "Total number of container facade operations",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cartridge_operation_duration_seconds",
			Help:    "Duration of container facade operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	m.AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartridge_allocations_total",
			Help: "Total number of block allocations by sub-allocator",
		},
		[]string{"sub_allocator"},
	)

	m.GrowEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartridge_grow_events_total",
			Help: "Total number of container auto-grow events",
		},
	)

	m.FragmentationScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartridge_fragmentation_score",
			Help: "Current allocator fragmentation score in [0, 1]",
		},
	)

	m.TotalBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartridge_total_blocks",
			Help: "Current container size in blocks",
		},
	)

	m.FreeBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartridge_free_blocks",
			Help: "Current number of free blocks",
		},
	)

	m.BufferPoolHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartridge_buffer_pool_hits_total",
			Help: "Total number of buffer pool cache hits",
		},
	)

	m.BufferPoolMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartridge_buffer_pool_misses_total",
			Help: "Total number of buffer pool cache misses",
		},
	)

	m.ContainerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartridge_container_uptime_seconds",
			Help: "Seconds since the container was opened",
		},
	)

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.ContainerUptimeSeconds.Set(time.Since(m.containerStartTime).Seconds())
	}
}

// RecordOperation records a facade operation with its status and duration.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAllocation records which sub-allocator served a request.
func (m *Metrics) RecordAllocation(subAllocator string) {
	if m == nil {
		return
	}
	m.AllocationsTotal.WithLabelValues(subAllocator).Inc()
}

// RecordGrow records an auto-grow event.
func (m *Metrics) RecordGrow() {
	if m == nil {
		return
	}
	m.GrowEventsTotal.Inc()
}

// RecordBufferPoolHit records a buffer pool cache hit.
func (m *Metrics) RecordBufferPoolHit() {
	if m == nil {
		return
	}
	m.BufferPoolHits.Inc()
}

// RecordBufferPoolMiss records a buffer pool cache miss.
func (m *Metrics) RecordBufferPoolMiss() {
	if m == nil {
		return
	}
	m.BufferPoolMisses.Inc()
}

// UpdateSpaceStats updates the allocator space and fragmentation gauges.
func (m *Metrics) UpdateSpaceStats(totalBlocks, freeBlocks uint64, fragmentationScore float64) {
	if m == nil {
		return
	}
	m.TotalBlocks.Set(float64(totalBlocks))
	m.FreeBlocks.Set(float64(freeBlocks))
	m.FragmentationScore.Set(fragmentationScore)
}
