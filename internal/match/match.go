// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package match implements the controller's demand-matching formula: how
// many additional pilots a site's queue should request, given the current
// job snapshot and the full registry of competing queues.
package match

import (
	"math"

	"github.com/glidein/glidein-controller/internal/jobqueue"
	"github.com/glidein/glidein-controller/internal/registry"
	"github.com/glidein/glidein-controller/internal/resource"
)

// Result is the outcome of matching one site: queue_ref -> additional
// pilots requested. Queues that need zero additional pilots are omitted.
type Result map[string]int

// Match computes the additional-pilots request for every queue owned by
// site, given snapshot (the current job demand) and reg (every site's
// advertised queues, including site's own).
//
// Match is a pure function of its three inputs: it performs no I/O and
// mutates nothing.
func Match(site string, reg *registry.Registry, snapshot *jobqueue.Snapshot) Result {
	queues, ok := reg.Get(site)
	if !ok || len(queues) == 0 {
		return Result{}
	}

	jobClasses := sortedJobClasses(snapshot)
	supply := allSupply(reg)

	result := make(Result)
	for _, q := range queues {
		n := matchOne(q, jobClasses, snapshot, supply)
		if n > 0 {
			result[q.Ref] = n
		}
	}
	return result
}

func sortedJobClasses(snapshot *jobqueue.Snapshot) []resource.Class {
	classes := make([]resource.Class, 0, len(snapshot.Totals))
	for c := range snapshot.Totals {
		classes = append(classes, c)
	}
	resource.SortClasses(classes)
	return classes
}

// supplyEntry is one (class, totals-across-all-sites) pair for glidein
// supply accounting.
type supplyEntry struct {
	class      resource.Class
	numQueued  int
	numProcess int
}

func allSupply(reg *registry.Registry) []supplyEntry {
	totals := make(map[resource.Class]*supplyEntry)
	order := make([]resource.Class, 0)
	for _, queues := range reg.SnapshotAll() {
		for _, q := range queues {
			e, ok := totals[q.Resources]
			if !ok {
				e = &supplyEntry{class: q.Resources}
				totals[q.Resources] = e
				order = append(order, q.Resources)
			}
			e.numQueued += q.NumQueued
			e.numProcess += q.NumProcess
		}
	}
	resource.SortClasses(order)
	out := make([]supplyEntry, 0, len(order))
	for _, c := range order {
		out = append(out, *totals[c])
	}
	return out
}

func matchOne(q registry.Queue, jobClasses []resource.Class, snapshot *jobqueue.Snapshot, supply []supplyEntry) int {
	R := q.Resources

	var jobsQueued, jobsProcessing float64
	for _, r := range jobClasses {
		if !r.Fits(R) {
			continue
		}
		mismatch, err := R.Mismatch(r)
		if err != nil {
			continue
		}
		agg := snapshot.Totals[r]
		jobsQueued += mismatch * float64(agg.Queued)
		jobsProcessing += mismatch * float64(agg.Processing)
	}

	jobRatio := 1.0
	if jobsProcessing > 0 {
		jobRatio = jobsProcessing / (jobsProcessing + jobsQueued)
	}

	var glideinsQueued, glideinsProcessing float64
	for _, s := range supply {
		if !s.class.Fits(R) {
			continue
		}
		mismatch, err := R.Mismatch(s.class)
		if err != nil {
			continue
		}
		glideinsQueued += mismatch * float64(s.numQueued)
		glideinsProcessing += mismatch * float64(s.numProcess)
	}

	glideinUtil := 1.0
	if glideinsProcessing > 0 {
		glideinUtil = glideinsProcessing / (glideinsProcessing + glideinsQueued)
	}

	globalQueue := (jobsQueued - glideinsQueued) * math.Pow(jobRatio, 0.25) * glideinUtil * glideinUtil
	localQueue := globalQueue - float64(q.NumQueued)
	if localQueue <= 0 {
		return 0
	}
	return int(math.Ceil(localQueue))
}
