package metrics

import (
	"context"
	"time"

	"github.com/runvault/runvault/internal/storage"
)

// StatsSource reports object counts and stored byte totals.
type StatsSource interface {
	Stats(ctx context.Context) (storage.StoreStats, error)
}

// CapacityFunc reports total and free bytes on the volume backing the store.
type CapacityFunc func() (total, free uint64, err error)

// Collector periodically refreshes the storage gauges from the store.
type Collector struct {
	metrics  *VaultMetrics
	store    StatsSource
	capacity CapacityFunc
}

// NewCollector creates a new storage metrics collector.
// Pass nil for capacity when volume capacity cannot be determined.
func NewCollector(m *VaultMetrics, store StatsSource, capacity CapacityFunc) *Collector {
	return &Collector{
		metrics:  m,
		store:    store,
		capacity: capacity,
	}
}

// Collect updates all storage gauges from the current state.
// Failures leave the previous gauge values in place.
func (c *Collector) Collect(ctx context.Context) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return
	}

	var total, free uint64
	if c.capacity != nil {
		if ct, cf, err := c.capacity(); err == nil {
			total, free = ct, cf
		}
	}

	c.metrics.UpdateStorageMetrics(stats.Objects, stats.DataBytes+stats.MetaBytes, total, free)
}

// Run starts periodic metric collection.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	c.Collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}
