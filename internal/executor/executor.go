// Package executor runs an ExecutionPlan wave by wave.
//
// The executor does not know what a job does. It calls a caller-supplied
// ExecuteFunc once per JobRun, records the outcome on the run, and decides
// from the fail-fast flags which downstream runs get skipped. It always
// returns a Result: errors and panics raised by the ExecuteFunc are recorded
// on the failing run and never escape Run.
package executor

import (
	"context"
	"time"

	"github.com/vk/wavegrid/internal/plan"
)

// ExecuteFunc performs the work of a single run. A nil error marks the run
// Succeeded, anything else marks it Failed. The context is cancelled when the
// run times out or when the cancellation grace period expires.
type ExecuteFunc func(ctx context.Context, run *plan.JobRun) error

// Options tunes an Executor.
type Options struct {
	// Concurrency caps the number of runs executing at once inside a wave.
	// Zero or negative means unbounded.
	Concurrency int
	// JobTimeout bounds every run whose JobSpec has no timeout of its own.
	// Zero means no limit.
	JobTimeout time.Duration
	// CancelGrace is how long running runs may continue after the context
	// passed to Run is cancelled. Zero waits for them indefinitely.
	CancelGrace time.Duration
	// Observers are notified of every run start and terminal transition.
	Observers []Observer
	// Clock supplies timestamps; defaults to time.Now.
	Clock func() time.Time
}

// Executor schedules the runs of a plan.
type Executor struct {
	opts Options
}

// New creates an Executor.
func New(opts Options) *Executor {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Executor{opts: opts}
}

type executionIDKey struct{}

// ExecutionID returns the ID of the execution the context belongs to. The
// context handed to an ExecuteFunc always carries one.
func ExecutionID(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}

func (e *Executor) now() time.Time {
	return e.opts.Clock()
}
