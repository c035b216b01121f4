// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package plan

import "fmt"

// Status is the execution state of a JobRun.
type Status int32

const (
	// Pending indicates the run is waiting for its wave to start.
	Pending Status = iota
	// Running indicates executeFn has been invoked and has not returned yet.
	Running
	// Succeeded indicates executeFn returned without error.
	Succeeded
	// Failed indicates executeFn returned an error, panicked or timed out.
	Failed
	// Skipped indicates the run never started.
	Skipped
)

// Statuses lists every status in declaration order.
var Statuses = []Status{Pending, Running, Succeeded, Failed, Skipped}

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == Succeeded || s == Failed || s == Skipped
}

// MarshalText renders the status by name in JSON and other text encodings.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
