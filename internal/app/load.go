package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/wavegrid/internal/config"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/hcl_adapter"
	"github.com/vk/wavegrid/internal/plan"
	"github.com/vk/wavegrid/internal/yaml_adapter"
)

// ErrInvalidConfig marks failures that happen before any run starts: unreadable
// or malformed workflow files, cycles and unknown dependencies.
var ErrInvalidConfig = errors.New("invalid configuration")

// NewDefaultLoader returns the loader for every supported workflow format.
func NewDefaultLoader() config.Loader {
	return config.NewCompositeLoader(hcl_adapter.NewLoader(), yaml_adapter.NewLoader())
}

// LoadWorkflows loads every workflow under the configured paths and builds one
// execution plan per workflow. Any error is fatal and wraps ErrInvalidConfig.
func (a *App) LoadWorkflows(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading workflows...", "paths", a.config.WorkflowPaths)

	model, err := a.loader.Load(ctx, a.config.WorkflowPaths...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if len(model.Workflows) == 0 {
		return fmt.Errorf("%w: no workflows found in %v", ErrInvalidConfig, a.config.WorkflowPaths)
	}

	plans := make([]*plan.ExecutionPlan, 0, len(model.Workflows))
	for _, w := range model.Workflows {
		p, err := plan.Build(w.Name, w.JobSpecs())
		if err != nil {
			return fmt.Errorf("%w: workflow %q (%s): %w", ErrInvalidConfig, w.Name, w.Source, err)
		}
		logger.Info("Execution plan built.", "workflow", w.Name, "waves", len(p.Waves), "runs", len(p.AllRuns()))
		plans = append(plans, p)
	}

	a.mu.Lock()
	a.model = model
	a.plans = plans
	a.mu.Unlock()
	return nil
}
