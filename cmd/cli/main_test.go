package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/wavegrid/internal/app"
	"github.com/vk/wavegrid/internal/cli"
)

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ci.hcl"), []byte(content), 0o600))
	return dir
}

func TestRun_InvalidWorkflowExitsWithUsageCode(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := writeWorkflow(t, `
workflow "ci" {
  job "a" {
    depends_on = ["b"]
    run        = "true"
  }
  job "b" {
    depends_on = ["a"]
    run        = "true"
  }
}
`)
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, logs, []string{"-log-dir", "", dir})

	// --- Assert ---
	require.ErrorIs(t, err, app.ErrInvalidConfig)
	assert.Equal(t, 2, cli.ExitCode(err))
	assert.Contains(t, err.Error(), "cycle")
}

func TestRun_FailingWorkflowExitsWithOne(t *testing.T) {
	t.Parallel()

	dir := writeWorkflow(t, `
workflow "ci" {
  job "lint" {
    run = "exit 3"
  }
}
`)

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"-log-dir", "", dir})

	require.ErrorIs(t, err, app.ErrWorkflowFailed)
	assert.Equal(t, 1, cli.ExitCode(err))
}

func TestRun_DryRunPrintsPlanToStdout(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := writeWorkflow(t, `
workflow "ci" {
  job "lint" {
    run = "touch ran"
  }
}
`)
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, logs, []string{"-dry-run", dir})

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), `plan "ci"`)
	assert.Contains(t, out.String(), `run "lint"`)
	assert.NotContains(t, logs.String(), `plan "ci"`)
	assert.NoFileExists(t, filepath.Join(dir, "ran"))
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
	assert.Equal(t, 2, cli.ExitCode(err))
}
