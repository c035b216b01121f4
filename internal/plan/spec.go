// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines JobSpec, the immutable definition of a job.

package plan

import "time"

// Axis is one named dimension of a matrix, e.g. os = [ubuntu, macos].
type Axis struct {
	Name   string
	Values []string
}

// Matrix is an ordered list of axes. The order is the declaration order and
// drives the order in which ExpandMatrix emits runs.
type Matrix []Axis

// Size returns the number of runs the matrix expands into.
func (m Matrix) Size() int {
	size := 1
	for _, axis := range m {
		size *= len(axis.Values)
	}
	return size
}

// JobSpec is the definition of one job in a workflow.
type JobSpec struct {
	// ID is the unique job identifier inside a plan.
	ID string
	// DependsOn lists the IDs of the jobs that must reach a terminal state
	// before any run of this job may start.
	DependsOn []string
	// Matrix is optional; an empty matrix yields exactly one run.
	Matrix Matrix
	// FailFast makes any failed run of this job skip every run of the jobs
	// that depend on it.
	FailFast bool
	// Required makes a skipped run of this job count as an overall failure.
	Required bool
	// Timeout bounds each run of this job. Zero defers to the executor default.
	Timeout time.Duration
	// Task is an opaque payload interpreted by the caller's execute function.
	Task any
}

// NewJobSpec returns a JobSpec with the default fail-fast policy enabled.
func NewJobSpec(id string, dependsOn ...string) *JobSpec {
	return &JobSpec{
		ID:        id,
		DependsOn: dependsOn,
		FailFast:  true,
	}
}

// WithAxis appends a matrix axis and returns the spec for chaining.
func (s *JobSpec) WithAxis(name string, values ...string) *JobSpec {
	s.Matrix = append(s.Matrix, Axis{Name: name, Values: values})
	return s
}
