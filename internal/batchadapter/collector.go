// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package batchadapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/glidein/glidein-controller/internal/apierrors"
	"github.com/glidein/glidein-controller/internal/retry"
)

// jobLine is the line-delimited JSON shape the collector query command is
// expected to emit, one line per job.
type jobLine struct {
	RequestCPUs    int    `json:"request_cpus"`
	RequestGPUs    int    `json:"request_gpus"`
	RequestMemory  int64  `json:"request_memory_mb"`
	RequestDisk    int64  `json:"request_disk_kb"`
	OriginalTime   int64  `json:"original_time_seconds"`
	Singularity    bool   `json:"singularity_image"`
	Status         string `json:"status"`
	Site           string `json:"site"`
}

// CollectorAdapter queries the batch-system collector by invoking a
// configured subprocess and fetches daemon tokens the same way, since the
// collector's in-process bindings cannot mint them directly.
type CollectorAdapter struct {
	CollectorAddr   string
	QueryCommand    string
	TokenFetchCmd   string
	Runner          CommandRunner
	RetryPolicy     retry.Policy
}

// CommandRunner executes a shell command and returns its stdout. Exists so
// tests can substitute a fake without forking a real process.
type CommandRunner interface {
	Run(ctx context.Context, command string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, command string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("batchadapter: command %q failed: %w", command, err)
	}
	return stdout.Bytes(), nil
}

// NewCollectorAdapter builds a CollectorAdapter with sensible defaults.
func NewCollectorAdapter(collectorAddr, queryCmd, tokenFetchCmd string) *CollectorAdapter {
	return &CollectorAdapter{
		CollectorAddr: collectorAddr,
		QueryCommand:  queryCmd,
		TokenFetchCmd: tokenFetchCmd,
		Runner:        ExecRunner{},
		RetryPolicy:   retry.NewExponentialBackoff(),
	}
}

// FetchJobs runs the configured query command and parses its line-delimited
// JSON output into JobRecords.
func (a *CollectorAdapter) FetchJobs(ctx context.Context) ([]JobRecord, error) {
	out, err := a.runWithRetry(ctx, a.QueryCommand, "-pool", a.CollectorAddr)
	if err != nil {
		return nil, apierrors.UpstreamUnavailable(err, "collector query failed")
	}

	var records []JobRecord
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var jl jobLine
		if err := json.Unmarshal([]byte(line), &jl); err != nil {
			return nil, apierrors.UpstreamUnavailable(err, "malformed collector output")
		}
		records = append(records, JobRecord{
			RequestCPUs:         jl.RequestCPUs,
			RequestGPUs:         jl.RequestGPUs,
			RequestMemoryMB:     jl.RequestMemory,
			RequestDiskKB:       jl.RequestDisk,
			OriginalTimeSeconds: jl.OriginalTime,
			HasSingularity:      jl.Singularity,
			Status:              parseStatus(jl.Status),
			Site:                jl.Site,
		})
	}
	return records, nil
}

// FetchStartdToken shells out to the configured token-fetch command and
// returns its trimmed stdout as the opaque credential.
func (a *CollectorAdapter) FetchStartdToken(ctx context.Context) ([]byte, error) {
	out, err := a.runWithRetry(ctx, a.TokenFetchCmd, "-pool", a.CollectorAddr, "-type", "COLLECTOR")
	if err != nil {
		return nil, apierrors.UpstreamUnavailable(err, "token fetch failed")
	}
	return bytes.TrimSpace(out), nil
}

func (a *CollectorAdapter) runWithRetry(ctx context.Context, command string, args ...string) ([]byte, error) {
	policy := a.RetryPolicy
	if policy == nil {
		policy = retry.NewNoRetry()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := a.Runner.Run(ctx, command, args...)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !policy.ShouldRetry(ctx, err, attempt) {
			return nil, lastErr
		}

		timer := time.NewTimer(policy.WaitTime(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func parseStatus(s string) JobStatus {
	switch strings.ToUpper(s) {
	case "IDLE":
		return StatusIdle
	case "RUNNING":
		return StatusRunning
	default:
		return StatusOther
	}
}
