package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/wavegrid/internal/app"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput  string
	PlanOutput string
	Err        error
	App        *app.App
	// Dir is the temporary directory holding the workflow files. Commands
	// run with it as their working directory.
	Dir string
}

// RunIntegrationTest provides a standardized harness for running integration
// tests using a default background context.
func RunIntegrationTest(t *testing.T, files map[string]string, configure func(*app.Config), opts ...app.Option) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, files, configure, opts...)
}

// RunIntegrationTestWithContext writes files into a temporary directory, runs
// the whole application over it and returns what happened. configure may
// adjust the configuration before it is validated.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, files map[string]string, configure func(*app.Config), opts ...app.Option) *HarnessResult {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(Unindent(content)), 0o644))
	}

	cfg := app.Config{
		WorkflowPaths: []string{dir},
		WorkDir:       dir,
		LogDir:        filepath.Join(dir, ".wavegrid", "logs"),
		LogLevel:      "debug",
		LogFormat:     "json",
	}
	if configure != nil {
		configure(&cfg)
	}
	appConfig, err := app.NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	planBuffer := &SafeBuffer{}
	opts = append([]app.Option{app.WithPlanWriter(planBuffer)}, opts...)
	testApp := app.NewApp(logBuffer, appConfig, app.NewDefaultLoader(), opts...)

	runErr := testApp.Run(ctx)

	if os.Getenv("WAVEGRID_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput:  logBuffer.String(),
		PlanOutput: planBuffer.String(),
		Err:        runErr,
		App:        testApp,
		Dir:        dir,
	}
}

// Unindent removes common leading whitespace from a multi-line string,
// allowing for readable, indented HCL and YAML snippets in Go tests.
func Unindent(s string) string {
	lines := strings.Split(s, "\n")

	// Remove leading/trailing empty lines that are common with multi-line literals
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}

	minIndent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}

	var b strings.Builder
	for i, line := range lines {
		switch {
		case minIndent <= 0:
			b.WriteString(line)
		case len(line) >= minIndent:
			b.WriteString(line[minIndent:])
		default:
			b.WriteString(strings.TrimSpace(line))
		}
		if i < len(lines)-1 {
			b.WriteRune('\n')
		}
	}
	b.WriteRune('\n')
	return b.String()
}
