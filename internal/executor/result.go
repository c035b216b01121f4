package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/wavegrid/internal/plan"
)

// Result summarizes one execution of a plan.
type Result struct {
	ExecutionID string
	Plan        *plan.ExecutionPlan
	// Succeeded is true when no run failed, no run of a required job was
	// skipped, and the execution was not cancelled.
	Succeeded bool
	Cancelled bool
	Counts    map[plan.Status]int
	// Failed lists the failed runs in wave order.
	Failed    []*plan.JobRun
	StartedAt time.Time
	Duration  time.Duration
}

func newResult(id string, p *plan.ExecutionPlan, cancelled bool, started, finished time.Time) *Result {
	res := &Result{
		ExecutionID: id,
		Plan:        p,
		Cancelled:   cancelled,
		Counts:      p.Counts(),
		StartedAt:   started,
		Duration:    finished.Sub(started),
	}
	for _, r := range p.AllRuns() {
		if r.Status() == plan.Failed {
			res.Failed = append(res.Failed, r)
		}
	}
	res.Succeeded = !cancelled && p.Succeeded()
	return res
}

// Err returns nil for a successful execution and otherwise an error naming
// what went wrong, wrapping the error of every failed run.
func (r *Result) Err() error {
	if r.Succeeded {
		return nil
	}

	errs := make([]error, 0, len(r.Failed))
	ids := make([]string, 0, len(r.Failed))
	for _, run := range r.Failed {
		errs = append(errs, run.Err())
		ids = append(ids, run.ID())
	}

	switch {
	case len(ids) > 0:
		return fmt.Errorf("workflow %q failed for %s: %w", r.Plan.Name, strings.Join(ids, ", "), errors.Join(errs...))
	case r.Cancelled:
		return fmt.Errorf("workflow %q was cancelled", r.Plan.Name)
	default:
		return fmt.Errorf("workflow %q: required jobs did not succeed", r.Plan.Name)
	}
}
