package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/vk/wavegrid/internal/plan"
	"github.com/vk/wavegrid/internal/scangate"
)

// Model is the unified, format-agnostic representation of every workflow
// loaded from the configured paths.
type Model struct {
	Workflows []*Workflow
}

// Workflow is one independent job graph.
type Workflow struct {
	Name string
	// Source is the file the workflow was loaded from.
	Source string
	Jobs   []*Job
}

// Job is the format-agnostic representation of a job definition.
type Job struct {
	ID        string
	DependsOn []string
	// Matrix axes in declaration order.
	Matrix   plan.Matrix
	FailFast bool
	Required bool
	Timeout  time.Duration
	// Run evaluates to the shell command of one run. Variables available
	// during evaluation are matrix.<axis>, workflow.name and job.id.
	Run hcl.Expression
	// Env holds one expression per environment variable, evaluated with the
	// same variables as Run.
	Env  map[string]hcl.Expression
	Scan *Scan
	// DefRange points at the job definition in its source file.
	DefRange hcl.Range
}

// Scan configures the vulnerability gate applied after a run's command.
type Scan struct {
	// Report evaluates to the path of the Trivy JSON report, relative to the
	// working directory. It sees the same variables as Job.Run.
	Report hcl.Expression
	// Threshold overrides the application-wide severity threshold. Empty
	// means "use the default".
	Threshold string
}

// JobSpecs converts the workflow's jobs into plan specs. The Task of every
// spec is the originating *Job.
func (w *Workflow) JobSpecs() []*plan.JobSpec {
	specs := make([]*plan.JobSpec, 0, len(w.Jobs))
	for _, j := range w.Jobs {
		specs = append(specs, &plan.JobSpec{
			ID:        j.ID,
			DependsOn: j.DependsOn,
			Matrix:    j.Matrix,
			FailFast:  j.FailFast,
			Required:  j.Required,
			Timeout:   j.Timeout,
			Task:      j,
		})
	}
	return specs
}

// Validate checks the cross-file constraints a single loader cannot see,
// along with the per-job settings no plan validation covers.
func (m *Model) Validate() error {
	seen := make(map[string]string, len(m.Workflows))
	for _, w := range m.Workflows {
		if w.Name == "" {
			return fmt.Errorf("workflow in %s has no name", w.Source)
		}
		if prev, dup := seen[w.Name]; dup {
			return fmt.Errorf("workflow %q is defined in both %s and %s", w.Name, prev, w.Source)
		}
		seen[w.Name] = w.Source

		for _, j := range w.Jobs {
			if err := j.validate(); err != nil {
				return fmt.Errorf("workflow %q (%s): %w", w.Name, w.Source, err)
			}
		}
	}
	return nil
}

func (j *Job) validate() error {
	if j.Run == nil {
		return fmt.Errorf("job %q: missing run command", j.ID)
	}
	for _, axis := range j.Matrix {
		if len(axis.Values) == 0 {
			return fmt.Errorf("job %q: matrix axis %q has no values", j.ID, axis.Name)
		}
	}
	if err := j.checkVariables("run", j.Run); err != nil {
		return err
	}
	for name, expr := range j.Env {
		if err := j.checkVariables("env "+name, expr); err != nil {
			return err
		}
	}
	if j.Timeout < 0 {
		return fmt.Errorf("job %q: timeout must not be negative", j.ID)
	}
	if j.Scan != nil {
		if err := j.validateScanReport(); err != nil {
			return err
		}
		if j.Scan.Threshold != "" {
			if _, err := scangate.ParseSeverity(j.Scan.Threshold); err != nil {
				return fmt.Errorf("job %q: %w", j.ID, err)
			}
		}
	}
	return nil
}

// validateScanReport requires a report path. The path of a matrix job must
// differ per run: it references job.run or every matrix axis.
func (j *Job) validateScanReport() error {
	expr := j.Scan.Report
	if expr == nil {
		return fmt.Errorf("job %q: scan report path must not be empty", j.ID)
	}
	if err := j.checkVariables("scan report", expr); err != nil {
		return err
	}

	vars := expr.Variables()
	if len(vars) == 0 {
		val, diags := expr.Value(nil)
		if !diags.HasErrors() && val.Type() == cty.String && val.IsKnown() && !val.IsNull() && val.AsString() == "" {
			return fmt.Errorf("job %q: scan report path must not be empty", j.ID)
		}
	}
	if len(j.Matrix) == 0 {
		return nil
	}

	used := make(map[string]bool, len(j.Matrix))
	for _, traversal := range vars {
		name, ok := attrName(traversal)
		switch {
		case traversal.RootName() == "job" && ok && name == "run":
			return nil
		case traversal.RootName() == "matrix" && ok:
			used[name] = true
		}
	}
	for _, axis := range j.Matrix {
		if !used[axis.Name] {
			return fmt.Errorf("job %q: scan report of a matrix job must reference matrix.%s or job.run so every run reads its own report", j.ID, axis.Name)
		}
	}
	return nil
}

// attrName returns the first attribute after a traversal's root.
func attrName(traversal hcl.Traversal) (string, bool) {
	if len(traversal) < 2 {
		return "", false
	}
	attr, ok := traversal[1].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	return attr.Name, true
}

// checkVariables rejects references to anything but matrix.<axis>,
// workflow.* and job.* before any run starts.
func (j *Job) checkVariables(what string, expr hcl.Expression) error {
	for _, traversal := range expr.Variables() {
		switch traversal.RootName() {
		case "workflow", "job":
		case "matrix":
			name, ok := attrName(traversal)
			if ok && !j.hasAxis(name) {
				return fmt.Errorf("job %q: %s references unknown matrix axis %q at %s", j.ID, what, name, traversal.SourceRange())
			}
		default:
			return fmt.Errorf("job %q: %s references unknown variable %q at %s", j.ID, what, traversal.RootName(), traversal.SourceRange())
		}
	}
	return nil
}

func (j *Job) hasAxis(name string) bool {
	for _, axis := range j.Matrix {
		if axis.Name == name {
			return true
		}
	}
	return false
}

// Workflow returns the workflow with the given name.
func (m *Model) Workflow(name string) (*Workflow, bool) {
	for _, w := range m.Workflows {
		if w.Name == name {
			return w, true
		}
	}
	return nil, false
}
