// Package runner provides the production ExecuteFunc: it renders a job's run
// command for one matrix coordinate, executes it through a shell, stores the
// output and applies the job's vulnerability scan gate.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/wavegrid/internal/config"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/executor"
	"github.com/vk/wavegrid/internal/logstore"
	"github.com/vk/wavegrid/internal/plan"
	"github.com/vk/wavegrid/internal/scangate"
)

// Options tunes a Runner.
type Options struct {
	// Shell runs every command as `<Shell> -c <command>`. Defaults to "sh".
	Shell string
	// WorkDir is the working directory of commands and the base of relative
	// scan report paths. Empty means the current directory.
	WorkDir string
	// Threshold is the scan gate threshold for jobs that do not set one.
	Threshold scangate.Severity
	// Logs stores run output. Nil disables log files.
	Logs *logstore.LogStorage
	// BaseEnv is the environment every command inherits. Nil means os.Environ().
	BaseEnv []string
	// WaitDelay bounds how long a cancelled command may keep its output
	// pipes open after being killed.
	WaitDelay time.Duration
}

// Runner executes the shell commands of config jobs.
type Runner struct {
	opts Options
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Shell == "" {
		opts.Shell = "sh"
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = os.Environ()
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = 5 * time.Second
	}
	return &Runner{opts: opts}
}

// CommandError reports a command that exited unsuccessfully.
type CommandError struct {
	Command string
	Err     error
	// LogPath is where the command output was saved, if anywhere.
	LogPath string
	// Tail holds the last lines of the command output.
	Tail string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed: %v", e.Err)
	if e.LogPath != "" {
		msg += fmt.Sprintf(" (log: %s)", e.LogPath)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecuteFunc returns the executor callback for the given workflow. The Task
// of every spec in the workflow's plan must be the originating *config.Job.
func (r *Runner) ExecuteFunc(w *config.Workflow) executor.ExecuteFunc {
	return func(ctx context.Context, run *plan.JobRun) error {
		job, ok := run.Spec().Task.(*config.Job)
		if !ok {
			return fmt.Errorf("run %q has no job definition", run.ID())
		}
		return r.execute(ctx, w.Name, job, run)
	}
}

func (r *Runner) execute(ctx context.Context, workflow string, job *config.Job, run *plan.JobRun) error {
	logger := ctxlog.FromContext(ctx)
	evalCtx := EvalContext(workflow, run)

	command, err := evalString(job.Run, evalCtx)
	if err != nil {
		return fmt.Errorf("failed to render run command: %w", err)
	}
	env, err := evalEnv(job.Env, evalCtx)
	if err != nil {
		return fmt.Errorf("failed to render environment: %w", err)
	}

	env = append(env, matrixEnv(run.Coordinate())...)
	env = append(env,
		"WAVEGRID_WORKFLOW="+workflow,
		"WAVEGRID_JOB="+run.JobID(),
		"WAVEGRID_RUN="+run.ID(),
		"WAVEGRID_EXECUTION_ID="+executor.ExecutionID(ctx),
	)

	logger.Debug("Executing command.", "command", command)
	output, runErr := r.runCommand(ctx, command, env)

	logPath := r.saveLog(ctx, workflow, run, output)
	if runErr != nil {
		return &CommandError{Command: command, Err: runErr, LogPath: logPath, Tail: tail(output, 10)}
	}

	if job.Scan != nil {
		if err := r.checkScan(ctx, job.Scan, evalCtx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runCommand(ctx context.Context, command string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.opts.Shell, "-c", command)
	cmd.Dir = r.opts.WorkDir
	cmd.Env = append(append([]string(nil), r.opts.BaseEnv...), env...)
	cmd.WaitDelay = r.opts.WaitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return out.Bytes(), err
}

func (r *Runner) saveLog(ctx context.Context, workflow string, run *plan.JobRun, output []byte) string {
	if r.opts.Logs == nil {
		return ""
	}
	path, err := r.opts.Logs.SaveLog(workflow, executor.ExecutionID(ctx), run.ID(), output)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to save run log.", "error", err)
		return ""
	}
	ctxlog.FromContext(ctx).Debug("Run log saved.", "path", path)
	return path
}

func (r *Runner) checkScan(ctx context.Context, scan *config.Scan, evalCtx *hcl.EvalContext) error {
	threshold := r.opts.Threshold
	if scan.Threshold != "" {
		sev, err := scangate.ParseSeverity(scan.Threshold)
		if err != nil {
			return err
		}
		threshold = sev
	}

	report, err := evalString(scan.Report, evalCtx)
	if err != nil {
		return fmt.Errorf("failed to render scan report path: %w", err)
	}
	if report == "" {
		return errors.New("scan report path rendered empty")
	}
	if !filepath.IsAbs(report) && r.opts.WorkDir != "" {
		report = filepath.Join(r.opts.WorkDir, report)
	}

	err = scangate.New(threshold).CheckFile(report)
	var violation *scangate.ViolationError
	if errors.As(err, &violation) {
		ctxlog.FromContext(ctx).Warn("Scan gate failed.", "threshold", threshold.String(), "findings", len(violation.Findings))
	}
	return err
}

// tail returns the last n lines of output.
func tail(output []byte, n int) string {
	output = bytes.TrimRight(output, "\n")
	if len(output) == 0 {
		return ""
	}
	idx := len(output)
	for i := 0; i < n; i++ {
		j := bytes.LastIndexByte(output[:idx], '\n')
		if j < 0 {
			return string(output)
		}
		idx = j
	}
	return string(output[idx+1:])
}
