package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/plan"
	"golang.org/x/sync/errgroup"
)

// execution carries the state of one call to Run.
type execution struct {
	*Executor
	id   string
	plan *plan.ExecutionPlan
	fn   ExecuteFunc
	// blocked maps a job ID to the reason its runs were skipped.
	blocked map[string]*SkippedError
}

// Run executes the plan and returns once every run is terminal. Waves run in
// order; wave N+1 starts only after every run of wave N finished. Runs inside
// a wave execute concurrently up to Options.Concurrency.
//
// Cancelling ctx stops new runs from starting: every pending run is marked
// Skipped, while runs already executing keep going on a detached context
// until they finish or Options.CancelGrace expires.
func (e *Executor) Run(ctx context.Context, p *plan.ExecutionPlan, fn ExecuteFunc) *Result {
	x := &execution{
		Executor: e,
		id:       uuid.NewString(),
		plan:     p,
		fn:       fn,
		blocked:  make(map[string]*SkippedError),
	}
	ctx = context.WithValue(ctx, executionIDKey{}, x.id)
	ctx, logger := ctxlog.With(ctx, "workflow", p.Name, "execution_id", x.id)

	started := e.now()
	logger.Info("Starting workflow execution.", "waves", len(p.Waves), "runs", len(p.AllRuns()))

	for _, wave := range p.Waves {
		x.runWave(ctx, wave)
	}

	res := newResult(x.id, p, ctx.Err() != nil, started, e.now())
	logger.Info("Workflow execution finished.",
		"succeeded", res.Succeeded,
		"cancelled", res.Cancelled,
		"failed", res.Counts[plan.Failed],
		"skipped", res.Counts[plan.Skipped],
		"duration", res.Duration,
	)
	return res
}

func (x *execution) runWave(ctx context.Context, wave *plan.Wave) {
	ctx, logger := ctxlog.With(ctx, "wave", wave.Index)

	var ready []*plan.JobRun
	for _, spec := range wave.Specs {
		if reason := x.blockReason(spec); reason != nil {
			x.blocked[spec.ID] = reason
			logger.Warn("Skipping job due to upstream outcome.", "job", spec.ID, "dependency", reason.Dependency)
			for _, run := range x.plan.Runs(spec.ID) {
				x.skip(ctx, wave, run, reason)
			}
			continue
		}
		ready = append(ready, x.plan.Runs(spec.ID)...)
	}

	logger.Debug("Starting wave.", "runs", len(ready))

	g := new(errgroup.Group)
	if x.opts.Concurrency > 0 {
		g.SetLimit(x.opts.Concurrency)
	}
	for _, run := range ready {
		g.Go(func() error {
			x.execute(ctx, wave, run)
			return nil
		})
	}
	_ = g.Wait()

	logger.Debug("Wave finished.")
}

// blockReason decides whether the runs of spec must be skipped. A spec is
// blocked when one of its dependencies was blocked itself, or when a
// fail-fast dependency has a failed run.
func (x *execution) blockReason(spec *plan.JobSpec) *SkippedError {
	for _, dep := range spec.DependsOn {
		if _, ok := x.blocked[dep]; ok {
			return &SkippedError{Dependency: dep, Reason: "was skipped"}
		}
		depSpec, ok := x.plan.Spec(dep)
		if !ok || !depSpec.FailFast {
			continue
		}
		for _, r := range x.plan.Runs(dep) {
			if r.Status() == plan.Failed {
				return &SkippedError{Dependency: dep, Reason: "failed"}
			}
		}
	}
	return nil
}

func (x *execution) skip(ctx context.Context, wave *plan.Wave, run *plan.JobRun, reason *SkippedError) {
	if err := run.MarkSkipped(x.now(), reason); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to skip run.", "run", run.ID(), "error", err)
		return
	}
	x.notifyFinished(ctx, wave, run)
}

func (x *execution) execute(ctx context.Context, wave *plan.Wave, run *plan.JobRun) {
	ctx, logger := ctxlog.With(ctx, "run", run.ID(), "job", run.JobID())

	if ctx.Err() != nil {
		logger.Debug("Execution cancelled, skipping run.")
		x.skip(ctx, wave, run, &SkippedError{Reason: "execution cancelled", Cause: context.Cause(ctx)})
		return
	}

	if err := run.MarkRunning(x.now()); err != nil {
		logger.Error("Failed to start run.", "error", err)
		return
	}
	logger.Info("▶️ Run started")
	x.notifyStarted(ctx, wave, run)

	err := x.invoke(ctx, run)
	if err != nil {
		if markErr := run.MarkFailed(x.now(), err); markErr != nil {
			logger.Error("Failed to record run failure.", "error", markErr)
		}
		logger.Error("❌ Run failed", "error", err)
	} else {
		if markErr := run.MarkSucceeded(x.now()); markErr != nil {
			logger.Error("Failed to record run success.", "error", markErr)
		}
		logger.Info("✅ Run succeeded")
	}
	x.notifyFinished(ctx, wave, run)
}

// invoke calls the ExecuteFunc and waits for it, its timeout, or the end of
// the cancellation grace period, whichever comes first.
func (x *execution) invoke(ctx context.Context, run *plan.JobRun) error {
	timeout := run.Spec().Timeout
	if timeout <= 0 {
		timeout = x.opts.JobTimeout
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &JobExecutionError{Run: run.ID(), Err: fmt.Errorf("%v", r), Panic: true, Stack: debug.Stack()}
			}
		}()
		if err := x.fn(runCtx, run); err != nil {
			done <- &JobExecutionError{Run: run.ID(), Err: err}
			return
		}
		done <- nil
	}()

	timedOut := func() bool {
		return timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded)
	}

	cancelled := ctx.Done()
	var grace <-chan time.Time
	for {
		select {
		case err := <-done:
			if timedOut() {
				return &TimeoutError{Run: run.ID(), Timeout: timeout}
			}
			return err
		case <-runCtx.Done():
			return &TimeoutError{Run: run.ID(), Timeout: timeout}
		case <-cancelled:
			cancelled = nil
			if x.opts.CancelGrace <= 0 {
				ctxlog.FromContext(ctx).Info("Execution cancelled, waiting for run to finish.")
				continue
			}
			ctxlog.FromContext(ctx).Info("Execution cancelled, waiting for run within grace period.", "grace", x.opts.CancelGrace)
			timer := time.NewTimer(x.opts.CancelGrace)
			defer timer.Stop()
			grace = timer.C
		case <-grace:
			cancel()
			return &TimeoutError{Run: run.ID(), Timeout: x.opts.CancelGrace, Cancelled: true}
		}
	}
}

func (x *execution) event(wave *plan.Wave, run *plan.JobRun) Event {
	return Event{
		ExecutionID: x.id,
		Workflow:    x.plan.Name,
		Wave:        wave.Index,
		Required:    run.Spec().Required,
		Run:         run.Snapshot(),
	}
}

func (x *execution) notifyStarted(ctx context.Context, wave *plan.Wave, run *plan.JobRun) {
	ev := x.event(wave, run)
	ctx = context.WithoutCancel(ctx)
	for _, o := range x.opts.Observers {
		o.RunStarted(ctx, ev)
	}
}

func (x *execution) notifyFinished(ctx context.Context, wave *plan.Wave, run *plan.JobRun) {
	ev := x.event(wave, run)
	ctx = context.WithoutCancel(ctx)
	for _, o := range x.opts.Observers {
		o.RunFinished(ctx, ev)
	}
}
