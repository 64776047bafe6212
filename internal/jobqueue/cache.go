// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobqueue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/glidein/glidein-controller/internal/apierrors"
	"github.com/glidein/glidein-controller/internal/batchadapter"
	"github.com/glidein/glidein-controller/internal/logging"
	"github.com/glidein/glidein-controller/internal/metrics"
)

// snapshotCacheKey is the cache-hit/miss key the SnapshotCache reports to its
// metrics collector. There is only one cached value, so it's constant.
const snapshotCacheKey = "jobqueue_snapshot"

// SnapshotCache holds the most recently fetched Snapshot and refreshes it
// no more often than every timeout interval, coalescing concurrent callers
// behind a single upstream fetch via singleflight.
type SnapshotCache struct {
	adapter batchadapter.Adapter
	timeout time.Duration
	logger  logging.Logger
	metrics metrics.Collector

	group singleflight.Group

	mu       sync.RWMutex
	snapshot *Snapshot
	fetched  time.Time
}

// NewSnapshotCache builds a cache that refreshes from adapter at most once
// per timeout. A non-positive timeout means every Get triggers a refresh.
func NewSnapshotCache(adapter batchadapter.Adapter, timeout time.Duration, logger logging.Logger) *SnapshotCache {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &SnapshotCache{
		adapter: adapter,
		timeout: timeout,
		logger:  logger,
		metrics: metrics.NoOpCollector{},
	}
}

// SetMetrics attaches a collector to record cache hit/miss counters against.
// Optional; a cache built via NewSnapshotCache records nowhere until this is
// called.
func (c *SnapshotCache) SetMetrics(collector metrics.Collector) {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	c.metrics = collector
}

// Get returns the current Snapshot, refreshing it first if the cache
// timeout has elapsed since the last fetch.
func (c *SnapshotCache) Get(ctx context.Context) (*Snapshot, error) {
	if c.needsRefresh() {
		c.metrics.RecordCacheMiss(snapshotCacheKey)
		if _, err, _ := c.group.Do("refresh", func() (interface{}, error) {
			return c.refresh(ctx)
		}); err != nil {
			return nil, err
		}
	} else {
		c.metrics.RecordCacheHit(snapshotCacheKey)
	}
	return c.GetCached(), nil
}

// GetCached returns whatever Snapshot is currently cached without
// triggering a refresh, even if stale. Returns an empty Snapshot if no
// fetch has ever completed.
func (c *SnapshotCache) GetCached() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return newSnapshot()
	}
	return c.snapshot
}

func (c *SnapshotCache) needsRefresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return true
	}
	if c.timeout <= 0 {
		return true
	}
	return time.Since(c.fetched) >= c.timeout
}

func (c *SnapshotCache) refresh(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	jobs, err := c.adapter.FetchJobs(ctx)
	if err != nil {
		c.logger.Warn("snapshot refresh failed", "error", err)
		if _, ok := apierrors.As(err); ok {
			return nil, err
		}
		return nil, apierrors.UpstreamUnavailable(err, "batch system query failed")
	}
	logging.LogDuration(c.logger, start, "snapshot_refresh")

	snap := buildSnapshot(jobs)

	c.mu.Lock()
	c.snapshot = snap
	c.fetched = time.Now()
	c.mu.Unlock()

	c.logger.Debug("snapshot refreshed", "classes", len(snap.Totals), "sites", len(snap.BySite))
	return snap, nil
}
