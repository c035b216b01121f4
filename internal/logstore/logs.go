// Package logstore saves the combined output of every run to disk.
package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogStorage manages saving run logs to files laid out as
// <base>/<workflow>/<execution id>/<run>.log.
type LogStorage struct {
	BaseDir string
}

// NewLogStorage creates a new log storage handler.
func NewLogStorage(baseDir string) *LogStorage {
	return &LogStorage{BaseDir: baseDir}
}

// SaveLog writes the output of one run and returns the file path.
func (ls *LogStorage) SaveLog(workflow, executionID, run string, output []byte) (string, error) {
	dir := filepath.Join(ls.BaseDir, sanitize(workflow), sanitize(executionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, sanitize(run)+".log")
	if err := os.WriteFile(path, output, 0o644); err != nil {
		return "", fmt.Errorf("failed to write log: %w", err)
	}
	return path, nil
}

// sanitize turns a run ID such as "test (os=ubuntu, py=3.12)" into a safe
// file name: "test_os=ubuntu_py=3.12".
func sanitize(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == '=':
			return r
		default:
			return '_'
		}
	}, name)

	// Collapse the runs of underscores left by ", " and " (".
	for strings.Contains(clean, "__") {
		clean = strings.ReplaceAll(clean, "__", "_")
	}
	clean = strings.Trim(clean, "_.")
	if clean == "" {
		return "run"
	}
	return clean
}
