// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines JobRun, one concrete point of a JobSpec's matrix.

package plan

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// AxisValue is the value one matrix axis takes in a Coordinate.
type AxisValue struct {
	Axis  string
	Value string
}

// Coordinate locates a JobRun in its JobSpec's matrix. Entries follow the
// axis declaration order.
type Coordinate []AxisValue

// Get returns the value of the named axis.
func (c Coordinate) Get(axis string) (string, bool) {
	for _, av := range c {
		if av.Axis == axis {
			return av.Value, true
		}
	}
	return "", false
}

// Map returns the coordinate as an axis -> value map.
func (c Coordinate) Map() map[string]string {
	m := make(map[string]string, len(c))
	for _, av := range c {
		m[av.Axis] = av.Value
	}
	return m
}

// String renders the coordinate as "os=ubuntu, py=3.12".
func (c Coordinate) String() string {
	parts := make([]string, len(c))
	for i, av := range c {
		parts[i] = av.Axis + "=" + av.Value
	}
	return strings.Join(parts, ", ")
}

// JobRun is a concrete instantiation of a JobSpec for one matrix coordinate.
// Status, timestamps and the terminal error are guarded by a mutex and are
// frozen once the run reaches a terminal state.
type JobRun struct {
	spec  *JobSpec
	coord Coordinate
	id    string

	mu         sync.RWMutex
	status     Status
	startedAt  time.Time
	finishedAt time.Time
	err        error
}

func newJobRun(spec *JobSpec, coord Coordinate) *JobRun {
	id := spec.ID
	if len(coord) > 0 {
		id = fmt.Sprintf("%s (%s)", spec.ID, coord)
	}
	return &JobRun{spec: spec, coord: coord, id: id, status: Pending}
}

// ID returns a human-readable identifier, unique within a plan:
// "lint" or "test (os=ubuntu, py=3.12)".
func (r *JobRun) ID() string { return r.id }

// JobID returns the ID of the owning JobSpec.
func (r *JobRun) JobID() string { return r.spec.ID }

// Spec returns the owning JobSpec.
func (r *JobRun) Spec() *JobSpec { return r.spec }

// Coordinate returns the run's matrix coordinate. Callers must not modify it.
func (r *JobRun) Coordinate() Coordinate { return r.coord }

// Status returns the current status.
func (r *JobRun) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Err returns the error recorded with a Failed or Skipped run.
func (r *JobRun) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// StartedAt returns when the run entered Running. Zero for runs that never
// started.
func (r *JobRun) StartedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startedAt
}

// FinishedAt returns when the run reached a terminal state.
func (r *JobRun) FinishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finishedAt
}

// MarkRunning moves a Pending run to Running.
func (r *JobRun) MarkRunning(at time.Time) error {
	return r.transition(Pending, Running, at, nil)
}

// MarkSucceeded moves a Running run to Succeeded.
func (r *JobRun) MarkSucceeded(at time.Time) error {
	return r.transition(Running, Succeeded, at, nil)
}

// MarkFailed moves a Running run to Failed and records the cause.
func (r *JobRun) MarkFailed(at time.Time, cause error) error {
	return r.transition(Running, Failed, at, cause)
}

// MarkSkipped moves a Pending run to Skipped and records the reason.
func (r *JobRun) MarkSkipped(at time.Time, reason error) error {
	return r.transition(Pending, Skipped, at, reason)
}

func (r *JobRun) transition(from, to Status, at time.Time, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != from {
		return fmt.Errorf("run %q: illegal transition %s -> %s", r.id, r.status, to)
	}

	r.status = to
	switch to {
	case Running:
		r.startedAt = at
	default:
		r.finishedAt = at
		r.err = err
	}
	return nil
}

// RunSnapshot is a point-in-time copy of a JobRun, safe to serialize.
type RunSnapshot struct {
	ID         string            `json:"id"`
	Job        string            `json:"job"`
	Matrix     map[string]string `json:"matrix,omitempty"`
	Status     Status            `json:"status"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Snapshot copies the run's current state.
func (r *JobRun) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := RunSnapshot{
		ID:     r.id,
		Job:    r.spec.ID,
		Status: r.status,
	}
	if len(r.coord) > 0 {
		s.Matrix = r.coord.Map()
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		s.StartedAt = &t
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		s.FinishedAt = &t
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}
