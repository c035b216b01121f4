package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/vk/wavegrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode maps an error returned by Parse or App.Run to a process exit code.
func ExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, app.ErrInvalidConfig):
		return 2
	default:
		return 1
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// settings is the layered view of every option. Keys of the TOML config file
// match the flag names with dashes replaced by underscores.
type settings struct {
	Workflows         []string `toml:"workflows"`
	Concurrency       int      `toml:"concurrency"`
	JobTimeout        duration `toml:"job_timeout"`
	CancelGrace       duration `toml:"cancel_grace"`
	SeverityThreshold string   `toml:"severity_threshold"`
	LogDir            string   `toml:"log_dir"`
	HistoryDB         string   `toml:"history_db"`
	EventsURL         string   `toml:"events_url"`
	HealthcheckPort   int      `toml:"healthcheck_port"`
	LogFormat         string   `toml:"log_format"`
	LogLevel          string   `toml:"log_level"`
	Shell             string   `toml:"shell"`
	DryRun            bool     `toml:"dry_run"`
	Report            string   `toml:"report"`
}

func defaults() settings {
	return settings{
		SeverityThreshold: "HIGH",
		LogDir:            ".wavegrid/logs",
		LogFormat:         "json",
		LogLevel:          "info",
		Shell:             "sh",
	}
}

// loadFile decodes path over s. Keys absent from the file keep their value.
func loadFile(path string, s *settings) error {
	md, err := toml.DecodeFile(path, s)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("wavegrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
wavegrid - Runs DAG workflows of shell jobs in dependency-ordered waves.

Usage:
  wavegrid [options] [WORKFLOW_PATH]

Arguments:
  WORKFLOW_PATH
    Path to a workflow file (.hcl, .yml, .yaml) or a directory of them.

Options:
`)
		flagSet.PrintDefaults()
	}

	d := defaults()
	workflowFlag := flagSet.String("workflow", "", "Path to the workflow file or directory.")
	wFlag := flagSet.String("w", "", "Path to the workflow file or directory (shorthand).")
	configFlag := flagSet.String("config", "", "Optional TOML file with defaults for every other option.")
	concurrencyFlag := flagSet.Int("concurrency", 0, "Max concurrent runs per wave. 0 is unbounded.")
	jobTimeoutFlag := flagSet.Duration("job-timeout", 0, "Default per-run timeout. 0 is none.")
	cancelGraceFlag := flagSet.Duration("cancel-grace", 0, "Grace period for running jobs after cancellation. 0 waits for them.")
	thresholdFlag := flagSet.String("severity-threshold", d.SeverityThreshold, "Scan gate threshold: CRITICAL, HIGH, MEDIUM or LOW.")
	logDirFlag := flagSet.String("log-dir", d.LogDir, "Directory for per-run output. Empty disables it.")
	historyFlag := flagSet.String("history-db", "", "SQLite file recording run results. Empty disables it.")
	eventsFlag := flagSet.String("events-url", "", "Socket.IO endpoint receiving run events. Empty disables it.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the /health, /status and /metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", d.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", d.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	shellFlag := flagSet.String("shell", d.Shell, "Shell used to run job commands.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Print the execution plan as HCL and exit.")
	reportFlag := flagSet.String("report", "", "Write an HCL report with the final statuses to this path.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	s := d
	if *configFlag != "" {
		if err := loadFile(*configFlag, &s); err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		slog.Debug("Config file loaded.", "path", *configFlag)
	}

	// Flags set on the command line win over the config file.
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "concurrency":
			s.Concurrency = *concurrencyFlag
		case "job-timeout":
			s.JobTimeout.Duration = *jobTimeoutFlag
		case "cancel-grace":
			s.CancelGrace.Duration = *cancelGraceFlag
		case "severity-threshold":
			s.SeverityThreshold = *thresholdFlag
		case "log-dir":
			s.LogDir = *logDirFlag
		case "history-db":
			s.HistoryDB = *historyFlag
		case "events-url":
			s.EventsURL = *eventsFlag
		case "healthcheck-port":
			s.HealthcheckPort = *healthPortFlag
		case "log-format":
			s.LogFormat = *logFormatFlag
		case "log-level":
			s.LogLevel = *logLevelFlag
		case "shell":
			s.Shell = *shellFlag
		case "dry-run":
			s.DryRun = *dryRunFlag
		case "report":
			s.Report = *reportFlag
		}
	})

	var path string
	switch {
	case *workflowFlag != "":
		path = *workflowFlag
	case *wFlag != "":
		path = *wFlag
	case flagSet.NArg() > 0:
		path = flagSet.Arg(0)
	}
	if path != "" {
		s.Workflows = []string{path}
	}
	slog.Debug("Workflow paths determined.", "paths", s.Workflows)

	if len(s.Workflows) == 0 {
		slog.Debug("No workflow path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	config, err := app.NewConfig(app.Config{
		WorkflowPaths:     s.Workflows,
		Concurrency:       s.Concurrency,
		JobTimeout:        s.JobTimeout.Duration,
		CancelGrace:       s.CancelGrace.Duration,
		SeverityThreshold: s.SeverityThreshold,
		Shell:             s.Shell,
		LogDir:            s.LogDir,
		HistoryDB:         s.HistoryDB,
		EventsURL:         s.EventsURL,
		LogFormat:         s.LogFormat,
		LogLevel:          s.LogLevel,
		HealthcheckPort:   s.HealthcheckPort,
		DryRun:            s.DryRun,
		ReportPath:        s.Report,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
