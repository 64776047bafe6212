// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package batchadapter isolates the controller from the external
// batch-system's wire protocol behind two narrow operations: listing jobs
// and fetching a daemon credential. The in-process bindings for most batch
// systems cannot mint a token, so that path shells out to a small helper
// command, mirroring the upstream source's own condor_token_fetch
// subprocess call.
package batchadapter

import "context"

// JobStatus classifies a job's lifecycle state as reported by the batch
// system.
type JobStatus int

const (
	// StatusIdle is a job waiting to be scheduled.
	StatusIdle JobStatus = iota
	// StatusRunning is a job currently executing.
	StatusRunning
	// StatusOther is any other status; counted but never summed into
	// matcher inputs.
	StatusOther
)

// JobRecord is one job as reported by the batch system, in its native
// units, before normalisation into a resource.Class.
type JobRecord struct {
	RequestCPUs         int
	RequestGPUs         int
	RequestMemoryMB     int64
	RequestDiskKB       int64
	OriginalTimeSeconds int64
	HasSingularity      bool
	Status              JobStatus
	Site                string // optional; empty when the batch system doesn't report it
}

// Adapter is the narrow contract the controller needs from the external
// batch system.
type Adapter interface {
	// FetchJobs returns the current set of jobs known to the batch system.
	FetchJobs(ctx context.Context) ([]JobRecord, error)

	// FetchStartdToken returns an opaque daemon credential to hand back to
	// a site agent alongside a match result.
	FetchStartdToken(ctx context.Context) ([]byte, error)
}
