package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/wavegrid/internal/plan"
)

// AssertRunStatus checks the final status of one run of a workflow.
func AssertRunStatus(t *testing.T, result *HarnessResult, workflow, runID string, want plan.Status) {
	t.Helper()

	res, ok := result.App.Result(workflow)
	require.True(t, ok, "workflow %q did not run", workflow)

	for _, r := range res.Plan.AllRuns() {
		if r.ID() == runID {
			require.Equal(t, want, r.Status(), "run %q of workflow %q", runID, workflow)
			return
		}
	}
	require.Failf(t, "run not found", "workflow %q has no run %q", workflow, runID)
}

// AssertRunLogged checks that the JSON log output mentions a started run.
func AssertRunLogged(t *testing.T, result *HarnessResult, runID string) {
	t.Helper()

	expected := fmt.Sprintf(`"run":%q`, runID)
	require.True(t,
		strings.Contains(result.LogOutput, expected),
		"expected log output for run %q was not found in logs", runID,
	)
}

// AssertRanBefore checks that run a finished before run b started.
func AssertRanBefore(t *testing.T, rec *Recorder, a, b string) {
	t.Helper()

	ra, ok := rec.Record(a)
	require.True(t, ok, "run %q did not execute", a)
	rb, ok := rec.Record(b)
	require.True(t, ok, "run %q did not execute", b)
	require.False(t, rb.Start.Before(ra.End), "run %q started before %q finished", b, a)
}
