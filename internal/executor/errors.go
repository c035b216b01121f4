package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSkipped matches every SkippedError.
var ErrSkipped = errors.New("skipped")

// JobExecutionError wraps a failure surfaced by an ExecuteFunc, including
// recovered panics.
type JobExecutionError struct {
	Run   string
	Err   error
	Panic bool
	// Stack is the goroutine stack captured when the ExecuteFunc panicked.
	Stack []byte
}

func (e *JobExecutionError) Error() string {
	if e.Panic {
		return fmt.Sprintf("run %q panicked: %v", e.Run, e.Err)
	}
	return fmt.Sprintf("run %q failed: %v", e.Run, e.Err)
}

func (e *JobExecutionError) Unwrap() error { return e.Err }

// TimeoutError reports a run that exceeded its time budget: either its own
// timeout, or the grace period granted after cancellation.
type TimeoutError struct {
	Run     string
	Timeout time.Duration
	// Cancelled is set when the budget was the cancellation grace period.
	Cancelled bool
}

func (e *TimeoutError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("run %q did not finish within the %s cancellation grace period", e.Run, e.Timeout)
	}
	return fmt.Sprintf("run %q timed out after %s", e.Run, e.Timeout)
}

// Unwrap lets errors.Is match context.DeadlineExceeded or context.Canceled.
func (e *TimeoutError) Unwrap() error {
	if e.Cancelled {
		return context.Canceled
	}
	return context.DeadlineExceeded
}

// SkippedError is recorded on every run that never started.
type SkippedError struct {
	// Dependency names the upstream job that blocked the run, if any.
	Dependency string
	Reason     string
	// Cause is the cancellation cause when the run was skipped because the
	// execution was cancelled.
	Cause error
}

func (e *SkippedError) Error() string {
	if e.Dependency != "" {
		return fmt.Sprintf("skipped: dependency %q %s", e.Dependency, e.Reason)
	}
	return "skipped: " + e.Reason
}

func (e *SkippedError) Is(target error) bool { return target == ErrSkipped }

func (e *SkippedError) Unwrap() error { return e.Cause }
