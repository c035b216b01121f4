package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/events"
	"github.com/vk/wavegrid/internal/executor"
	"github.com/vk/wavegrid/internal/history"
	"github.com/vk/wavegrid/internal/logstore"
	"github.com/vk/wavegrid/internal/plan"
	"github.com/vk/wavegrid/internal/runner"
	"golang.org/x/sync/errgroup"
)

// ErrWorkflowFailed marks an execution where at least one workflow did not
// succeed.
var ErrWorkflowFailed = errors.New("workflow failed")

// Run loads the workflows, builds their plans and executes every plan
// concurrently. Plans are independent: a failure in one never gates another.
// The returned error wraps ErrInvalidConfig when nothing could run and
// ErrWorkflowFailed when a workflow failed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if err := a.LoadWorkflows(ctx); err != nil {
		return err
	}
	plans := a.Plans()

	if a.config.DryRun {
		return a.printPlans(plans)
	}

	if _, err := a.healthCheckServer(); err != nil {
		return err
	}
	defer a.closeHealthCheckServer()

	observers := append([]executor.Observer{a.metrics}, a.observers...)

	var store *history.Store
	if a.config.HistoryDB != "" {
		s, err := history.Open(a.config.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer s.Close()
		store = s
		observers = append(observers, store)
	}

	if a.config.EventsURL != "" {
		pub, err := events.Dial(ctx, a.config.EventsURL, events.Options{})
		if err != nil {
			a.logger.Warn("Events endpoint unavailable, continuing without events.", "url", a.config.EventsURL, "error", err)
		} else {
			defer pub.Close()
			observers = append(observers, pub)
		}
	}

	newExecute := a.newExecute
	if newExecute == nil {
		newExecute = a.shellRunner().ExecuteFunc
	}

	exec := executor.New(executor.Options{
		Concurrency: a.config.Concurrency,
		JobTimeout:  a.config.JobTimeout,
		CancelGrace: a.config.CancelGrace,
		Observers:   observers,
	})

	a.logger.Info("🚀 Starting concurrent execution...", "workflows", len(plans))
	model := a.Model()

	g := new(errgroup.Group)
	for _, p := range plans {
		w, _ := model.Workflow(p.Name)
		g.Go(func() error {
			res := exec.Run(ctx, p, newExecute(w))
			a.setResult(res)
			if store != nil {
				if err := store.RecordExecution(context.WithoutCancel(ctx), res); err != nil {
					a.logger.Error("Failed to record execution history.", "workflow", p.Name, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	a.logger.Info("🏁 Execution finished.")

	if a.config.ReportPath != "" {
		if err := a.writeReport(plans); err != nil {
			return err
		}
	}

	var errs []error
	for _, p := range plans {
		res, _ := a.Result(p.Name)
		if err := res.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrWorkflowFailed, errors.Join(errs...))
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) shellRunner() *runner.Runner {
	opts := runner.Options{
		Shell:     a.config.Shell,
		WorkDir:   a.config.WorkDir,
		Threshold: a.config.Threshold(),
	}
	if a.config.LogDir != "" {
		opts.Logs = logstore.NewLogStorage(a.config.LogDir)
	}
	return runner.New(opts)
}

func (a *App) printPlans(plans []*plan.ExecutionPlan) error {
	for _, p := range plans {
		if err := p.WriteHCL(a.planW); err != nil {
			return fmt.Errorf("failed to print plan %q: %w", p.Name, err)
		}
	}
	return nil
}

func (a *App) writeReport(plans []*plan.ExecutionPlan) error {
	if err := os.MkdirAll(filepath.Dir(a.config.ReportPath), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(a.config.ReportPath)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	for _, p := range plans {
		if err := p.WriteHCL(f); err != nil {
			return fmt.Errorf("failed to write report for %q: %w", p.Name, err)
		}
	}
	a.logger.Info("Report written.", "path", a.config.ReportPath)
	return f.Close()
}
