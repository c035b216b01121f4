// This file contains the logic for translating the HCL schema structs into
// the format-agnostic configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/wavegrid/internal/config"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/plan"
)

// translateWorkflow converts the HCL-specific workflow schema into the agnostic model.
func (l *Loader) translateWorkflow(ctx context.Context, file string, wb *workflowBlock) (*config.Workflow, error) {
	w := &config.Workflow{Name: wb.Name, Source: file}
	for _, jb := range wb.Jobs {
		job, err := l.translateJob(ctx, jb)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", wb.Name, err)
		}
		w.Jobs = append(w.Jobs, job)
	}
	return w, nil
}

// translateJob converts the HCL-specific job schema into the agnostic model.
func (l *Loader) translateJob(ctx context.Context, jb *jobBlock) (*config.Job, error) {
	logger := ctxlog.FromContext(ctx).With("job", jb.ID)
	ctx = ctxlog.WithLogger(ctx, logger)

	logger.Debug("Translating HCL job to internal config model.")

	job := &config.Job{
		ID:        jb.ID,
		DependsOn: jb.DependsOn,
		FailFast:  true,
		Required:  jb.Required,
		Run:       jb.Run,
	}
	if jb.Body != nil {
		job.DefRange = jb.Body.MissingItemRange()
	}
	if jb.FailFast != nil {
		job.FailFast = *jb.FailFast
	}

	if jb.Timeout != "" {
		d, err := time.ParseDuration(jb.Timeout)
		if err != nil {
			return nil, fmt.Errorf("job %q: invalid timeout %q: %w", jb.ID, jb.Timeout, err)
		}
		job.Timeout = d
	}

	if jb.Matrix != nil {
		matrix, err := translateMatrix(jb.Matrix)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", jb.ID, err)
		}
		job.Matrix = matrix
	}

	if isExprDefined(ctx, jb.Env, "env") {
		env, err := translateEnv(jb.Env)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", jb.ID, err)
		}
		job.Env = env
	}

	if jb.Scan != nil {
		job.Scan = &config.Scan{Report: jb.Scan.Report, Threshold: jb.Scan.Threshold}
	}
	return job, nil
}

// translateMatrix reads the axes of a matrix block in the order they appear
// in the file.
func translateMatrix(mb *matrixBlock) (plan.Matrix, error) {
	attrs, diags := mb.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid matrix block: %w", diags)
	}

	ordered := make([]*hcl.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		ordered = append(ordered, attr)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Range.Start.Byte < ordered[j].Range.Start.Byte
	})

	matrix := make(plan.Matrix, 0, len(ordered))
	for _, attr := range ordered {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("matrix axis %q: %w", attr.Name, diags)
		}
		values, err := toStringList(val)
		if err != nil {
			return nil, fmt.Errorf("matrix axis %q at %s: %w", attr.Name, attr.Range, err)
		}
		matrix = append(matrix, plan.Axis{Name: attr.Name, Values: values})
	}
	return matrix, nil
}

// translateEnv splits an object expression into one expression per
// variable. Keys must be static; values are evaluated per run.
func translateEnv(expr hcl.Expression) (map[string]hcl.Expression, error) {
	pairs, diags := hcl.ExprMap(expr)
	if diags.HasErrors() {
		return nil, fmt.Errorf("env must be an object: %w", diags)
	}

	env := make(map[string]hcl.Expression, len(pairs))
	for _, pair := range pairs {
		keyVal, diags := pair.Key.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("env key at %s: %w", pair.Key.Range(), diags)
		}
		key, err := toString(keyVal)
		if err != nil {
			return nil, fmt.Errorf("env key at %s: %w", pair.Key.Range(), err)
		}
		env[key] = pair.Value
	}
	return env, nil
}
