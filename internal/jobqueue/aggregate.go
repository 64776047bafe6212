// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package jobqueue normalises batch-system job records into resource
// classes and caches the resulting snapshot, coalescing concurrent
// refreshes into a single upstream call.
package jobqueue

import (
	"github.com/glidein/glidein-controller/internal/batchadapter"
	"github.com/glidein/glidein-controller/internal/resource"
)

// Aggregate holds, for one resource.Class, the count of jobs in each
// lifecycle bucket.
type Aggregate struct {
	Queued     int
	Processing int
	Unknown    int
}

// Snapshot is the full normalised view of the batch system at one point in
// time: per-class totals across every site, plus the same totals broken
// down by site.
type Snapshot struct {
	Totals map[resource.Class]Aggregate
	BySite map[string]map[resource.Class]Aggregate
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Totals: make(map[resource.Class]Aggregate),
		BySite: make(map[string]map[resource.Class]Aggregate),
	}
}

// normalize converts batch-native units into a resource.Class using the
// default rounding tolerance: memory (MB -> GB) and disk (KB -> GB) convert
// by integer division, matching the collector's own unit handling, then
// round up to the nearest bin edge with the usual 5% slack.
func normalize(job batchadapter.JobRecord) (resource.Class, error) {
	partial := map[string]any{
		resource.DimCPU:         job.RequestCPUs,
		resource.DimGPU:         job.RequestGPUs,
		resource.DimMemory:      float64(job.RequestMemoryMB / 1000),
		resource.DimDisk:        float64(job.RequestDiskKB / 1000000),
		resource.DimTime:        float64(job.OriginalTimeSeconds) / 3600.0,
		resource.DimSingularity: job.HasSingularity,
	}
	return resource.Construct(partial, resource.DefaultTolerance)
}

// buildSnapshot normalises every job record into the snapshot's totals and
// per-site breakdowns. A record that fails to normalise (out-of-range
// dimension) is skipped rather than failing the whole refresh, since a
// single malformed classad should not take down the aggregate view.
func buildSnapshot(jobs []batchadapter.JobRecord) *Snapshot {
	snap := newSnapshot()
	for _, job := range jobs {
		class, err := normalize(job)
		if err != nil {
			continue
		}

		total := snap.Totals[class]
		addStatus(&total, job.Status)
		snap.Totals[class] = total

		if job.Site == "" {
			continue
		}
		siteMap, ok := snap.BySite[job.Site]
		if !ok {
			siteMap = make(map[resource.Class]Aggregate)
			snap.BySite[job.Site] = siteMap
		}
		bySite := siteMap[class]
		addStatus(&bySite, job.Status)
		siteMap[class] = bySite
	}
	return snap
}

func addStatus(agg *Aggregate, status batchadapter.JobStatus) {
	switch status {
	case batchadapter.StatusIdle:
		agg.Queued++
	case batchadapter.StatusRunning:
		agg.Processing++
	default:
		agg.Unknown++
	}
}
