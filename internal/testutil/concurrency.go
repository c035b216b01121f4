package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/wavegrid/internal/config"
	"github.com/vk/wavegrid/internal/executor"
	"github.com/vk/wavegrid/internal/plan"
)

// Recorder is an in-process stand-in for the shell runner. It records the
// execution time of each run, tracks peak concurrency and fails the runs it
// was told to fail.
type Recorder struct {
	mu            sync.Mutex
	records       map[string]*Span
	failures      map[string]error
	sleepDuration time.Duration
	active        int
	maxActive     int
}

// NewRecorder creates a Recorder whose runs each take sleep.
func NewRecorder(sleep time.Duration) *Recorder {
	return &Recorder{
		records:       make(map[string]*Span),
		failures:      make(map[string]error),
		sleepDuration: sleep,
	}
}

// FailOn makes the run with the given ID return err.
func (r *Recorder) FailOn(runID string, err error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[runID] = err
	return r
}

// ExecuteFunc satisfies app.ExecuteFuncFactory.
func (r *Recorder) ExecuteFunc(*config.Workflow) executor.ExecuteFunc {
	return func(ctx context.Context, run *plan.JobRun) error {
		r.mu.Lock()
		r.active++
		if r.active > r.maxActive {
			r.maxActive = r.active
		}
		r.mu.Unlock()

		start := time.Now()
		var err error
		select {
		case <-time.After(r.sleepDuration):
		case <-ctx.Done():
			err = ctx.Err()
		}
		end := time.Now()

		r.mu.Lock()
		defer r.mu.Unlock()
		r.active--
		r.records[run.ID()] = &Span{Start: start, End: end}
		if err != nil {
			return err
		}
		return r.failures[run.ID()]
	}
}

// Record returns the timing of a run, if it executed.
func (r *Recorder) Record(runID string) (*Span, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[runID]
	return rec, ok
}

// Count returns how many runs executed.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// MaxConcurrent returns the peak number of runs executing at once.
func (r *Recorder) MaxConcurrent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxActive
}
