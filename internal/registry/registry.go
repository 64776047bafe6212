// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the in-memory table of registered site queues: for
// each site, the set of resource classes it advertises and how many
// glideins it has queued and processing in each.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/glidein/glidein-controller/internal/apierrors"
	"github.com/glidein/glidein-controller/internal/resource"
)

// Queue is one site's advertised capacity for a single resource class. Ref
// is the caller-supplied queue identifier, preserved for round-tripping
// back to the client in match results; two upserted queues whose resources
// bin to the same Class collapse into one entry keyed by that class, and
// only the last one's Ref and counts survive the collapse.
type Queue struct {
	Ref        string
	Resources  resource.Class
	NumQueued  int
	NumProcess int
}

// site is the registry's internal per-site record.
type site struct {
	queues     []Queue
	lastUpdate time.Time
}

// Registry is the live table of site queues. Upsert fully replaces a site's
// queue list; it never merges with the previous state, matching the
// upstream collector's own replace-on-update semantics.
type Registry struct {
	mu       sync.RWMutex
	sites    map[string]*site
	idleTTL  time.Duration
}

// New builds an empty Registry. idleTTL, if positive, makes Get/SnapshotAll
// treat a site as absent once it has gone longer than idleTTL since its
// last Upsert; zero or negative means a site is never dropped.
func New(idleTTL time.Duration) *Registry {
	return &Registry{
		sites:   make(map[string]*site),
		idleTTL: idleTTL,
	}
}

// RawQueue is the wire shape of one entry in a client's queue upsert
// payload, before resource.Construct has canonicalised it. Ref is the key
// the client used in its queues_map (e.g. "gpu-queue"), preserved so match
// results can be reported back under the same identifier.
type RawQueue struct {
	Ref           string
	Resources     map[string]any
	NumQueued     int
	NumProcessing int
}

// Upsert fully replaces name's queue list with the canonicalised form of
// raw. Every resource map is validated against the recognised dimension
// set; an unrecognised key is rejected rather than silently dropped, since
// this is client input, not an internal default-merge. Queues are keyed by
// their canonical resource.Class, not by Ref: two raw entries that bin to
// the same class collapse into one, with the last entry's Ref and counts
// winning.
func (r *Registry) Upsert(name string, raw []RawQueue) error {
	queues := make(map[resource.Class]Queue, len(raw))
	for _, rq := range raw {
		for k := range rq.Resources {
			if !resource.IsRecognizedDimension(k) {
				return apierrors.BadInput("unrecognized resource dimension %q", k)
			}
		}
		class, err := resource.Construct(rq.Resources, 1)
		if err != nil {
			return wrapConstructErr(err)
		}
		queues[class] = Queue{
			Ref:        rq.Ref,
			Resources:  class,
			NumQueued:  rq.NumQueued,
			NumProcess: rq.NumProcessing,
		}
	}

	classes := make([]resource.Class, 0, len(queues))
	for c := range queues {
		classes = append(classes, c)
	}
	resource.SortClasses(classes)

	ordered := make([]Queue, 0, len(classes))
	for _, c := range classes {
		ordered = append(ordered, queues[c])
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[name] = &site{queues: ordered, lastUpdate: time.Now()}
	return nil
}

// Get returns name's current queue list. The bool is false if the site is
// unknown or has aged out past idleTTL.
func (r *Registry) Get(name string) ([]Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[name]
	if !ok || r.expired(s) {
		return nil, false
	}
	out := make([]Queue, len(s.queues))
	copy(out, s.queues)
	return out, true
}

// SnapshotAll returns every non-expired site's queue list, keyed by site
// name.
func (r *Registry) SnapshotAll() map[string][]Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]Queue, len(r.sites))
	for name, s := range r.sites {
		if r.expired(s) {
			continue
		}
		cp := make([]Queue, len(s.queues))
		copy(cp, s.queues)
		out[name] = cp
	}
	return out
}

func (r *Registry) expired(s *site) bool {
	if r.idleTTL <= 0 {
		return false
	}
	return time.Since(s.lastUpdate) > r.idleTTL
}

// wrapConstructErr lifts a resource package error into the controller's
// structured error taxonomy so the HTTP layer can map it to a status code.
func wrapConstructErr(err error) error {
	var oor *resource.OutOfRangeError
	if errors.As(err, &oor) {
		return apierrors.OutOfRange(oor.Dimension, "%s", oor.Error())
	}
	return apierrors.BadInput("%s", err.Error())
}
