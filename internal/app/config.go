package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/wavegrid/internal/scangate"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// WorkflowPaths are files or directories holding .hcl/.yml/.yaml workflows.
	WorkflowPaths []string

	Concurrency       int
	JobTimeout        time.Duration
	CancelGrace       time.Duration
	SeverityThreshold string
	Shell             string
	// WorkDir is where run commands execute. Empty means the current directory.
	WorkDir string

	LogDir    string // per-run output, '' disables
	HistoryDB string // sqlite file, '' disables
	EventsURL string // socket.io endpoint, '' disables

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// DryRun prints the execution plans and exits without running anything.
	DryRun bool
	// ReportPath receives an HCL report of the final statuses.
	ReportPath string

	threshold scangate.Severity
}

// NewConfig validates cfg and returns a copy ready for NewApp.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.WorkflowPaths) == 0 {
		return nil, errors.New("at least one workflow path is required")
	}
	for _, p := range cfg.WorkflowPaths {
		if p == "" {
			return nil, errors.New("workflow path must not be empty")
		}
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, ok := logLevels[cfg.LogLevel]; !ok {
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	if cfg.Concurrency < 0 {
		return nil, errors.New("concurrency must not be negative")
	}
	if cfg.JobTimeout < 0 {
		return nil, errors.New("job-timeout must not be negative")
	}
	if cfg.CancelGrace < 0 {
		return nil, errors.New("cancel-grace must not be negative")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck-port %d", cfg.HealthcheckPort)
	}

	if cfg.SeverityThreshold == "" {
		cfg.SeverityThreshold = scangate.DefaultThreshold.String()
	}
	threshold, err := scangate.ParseSeverity(cfg.SeverityThreshold)
	if err != nil {
		return nil, err
	}
	cfg.threshold = threshold

	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}

	cfg.WorkflowPaths = append([]string(nil), cfg.WorkflowPaths...)
	return &cfg, nil
}

// Threshold returns the parsed scan gate threshold.
func (c *Config) Threshold() scangate.Severity {
	return c.threshold
}
