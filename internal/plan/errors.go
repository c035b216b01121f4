// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package plan

import (
	"errors"
	"fmt"

	"github.com/vk/wavegrid/internal/dag"
)

var (
	// ErrCycle matches every CycleError.
	ErrCycle = dag.ErrCycle
	// ErrUnknownDependency matches every UnknownDependencyError.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrInvalidJob matches every InvalidJobError.
	ErrInvalidJob = errors.New("invalid job")
)

// CycleError reports a dependency cycle between job specs.
type CycleError = dag.CycleError

// UnknownDependencyError reports a depends_on entry naming a job that is not
// part of the plan.
type UnknownDependencyError struct {
	Job        string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("job %q depends on unknown job %q", e.Job, e.Dependency)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }

// InvalidJobError reports a malformed job spec.
type InvalidJobError struct {
	Job    string
	Reason string
}

func (e *InvalidJobError) Error() string {
	if e.Job == "" {
		return fmt.Sprintf("invalid job: %s", e.Reason)
	}
	return fmt.Sprintf("invalid job %q: %s", e.Job, e.Reason)
}

func (e *InvalidJobError) Unwrap() error { return ErrInvalidJob }
