package integration_tests

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/wavegrid/internal/app"
	"github.com/vk/wavegrid/internal/executor"
	"github.com/vk/wavegrid/internal/plan"
	"github.com/vk/wavegrid/internal/testutil"
)

// TestErrorHandling_NoFailFastKeepsSiblings checks that with fail_fast=false
// the other matrix runs succeed and the dependent job still runs.
func TestErrorHandling_NoFailFastKeepsSiblings(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	workflow := `
		workflow "ci" {
		  job "test" {
		    fail_fast = false
		    matrix {
		      shard = ["1", "2", "3"]
		    }
		    run = "true"
		  }
		  job "report" {
		    depends_on = ["test"]
		    run        = "true"
		  }
		}
	`
	rec := testutil.NewRecorder(0).FailOn("test (shard=2)", errors.New("flaky"))

	// --- Act ---
	result := testutil.RunIntegrationTest(t, map[string]string{"ci.hcl": workflow}, nil, app.WithExecuteFunc(rec.ExecuteFunc))

	// --- Assert ---
	require.ErrorIs(t, result.Err, app.ErrWorkflowFailed)
	testutil.AssertRunStatus(t, result, "ci", "test (shard=1)", plan.Succeeded)
	testutil.AssertRunStatus(t, result, "ci", "test (shard=2)", plan.Failed)
	testutil.AssertRunStatus(t, result, "ci", "test (shard=3)", plan.Succeeded)
	testutil.AssertRunStatus(t, result, "ci", "report", plan.Succeeded)
}

// TestErrorHandling_TransitiveSkip checks that skips propagate down the chain.
func TestErrorHandling_TransitiveSkip(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	workflow := `
		workflow "ci" {
		  job "build" {
		    run = "true"
		  }
		  job "test" {
		    depends_on = ["build"]
		    fail_fast  = false
		    run        = "true"
		  }
		  job "deploy" {
		    depends_on = ["test"]
		    run        = "true"
		  }
		}
	`
	rec := testutil.NewRecorder(0).FailOn("build", errors.New("compile error"))

	// --- Act ---
	result := testutil.RunIntegrationTest(t, map[string]string{"ci.hcl": workflow}, nil, app.WithExecuteFunc(rec.ExecuteFunc))

	// --- Assert ---
	require.Error(t, result.Err)
	testutil.AssertRunStatus(t, result, "ci", "test", plan.Skipped)
	testutil.AssertRunStatus(t, result, "ci", "deploy", plan.Skipped)
	assert.Equal(t, 1, rec.Count())
}

// TestErrorHandling_TimeoutFailsRun checks per-job and default timeouts.
func TestErrorHandling_TimeoutFailsRun(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	workflow := `
		workflow "ci" {
		  job "slow" {
		    timeout = "50ms"
		    run     = "true"
		  }
		  job "also_slow" {
		    run = "true"
		  }
		}
	`
	rec := testutil.NewRecorder(2 * time.Second)

	// --- Act ---
	start := time.Now()
	result := testutil.RunIntegrationTest(t,
		map[string]string{"ci.hcl": workflow},
		func(cfg *app.Config) { cfg.JobTimeout = 100 * time.Millisecond },
		app.WithExecuteFunc(rec.ExecuteFunc),
	)

	// --- Assert ---
	require.Error(t, result.Err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var timeoutErr *executor.TimeoutError
	require.ErrorAs(t, result.Err, &timeoutErr)
	testutil.AssertRunStatus(t, result, "ci", "slow", plan.Failed)
	testutil.AssertRunStatus(t, result, "ci", "also_slow", plan.Failed)

	res, ok := result.App.Result("ci")
	require.True(t, ok)
	for _, r := range res.Failed {
		require.ErrorAs(t, r.Err(), &timeoutErr)
		if r.ID() == "slow" {
			assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
		} else {
			assert.Equal(t, 100*time.Millisecond, timeoutErr.Timeout)
		}
	}
}

// TestErrorHandling_ScanGateFailsRun runs a job whose scan report contains a
// HIGH finding under the default threshold.
func TestErrorHandling_ScanGateFailsRun(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	files := map[string]string{
		"ci.hcl": `
			workflow "ci" {
			  job "scan" {
			    run = "cp fixture.json trivy.json"
			    scan {
			      report = "trivy.json"
			    }
			  }
			  job "relaxed" {
			    run = "true"
			    scan {
			      report    = "fixture.json"
			      threshold = "CRITICAL"
			    }
			  }
			}
		`,
		"fixture.json": `{"Results":[{"Target":"app:latest","Vulnerabilities":[{"VulnerabilityID":"CVE-2024-0001","PkgName":"openssl","Severity":"HIGH"}]}]}`,
	}

	// --- Act ---
	result := testutil.RunIntegrationTest(t, files, nil)

	// --- Assert ---
	require.ErrorIs(t, result.Err, app.ErrWorkflowFailed)
	assert.Contains(t, result.Err.Error(), "CVE-2024-0001")
	testutil.AssertRunStatus(t, result, "ci", "scan", plan.Failed)
	testutil.AssertRunStatus(t, result, "ci", "relaxed", plan.Succeeded)
}

// TestErrorHandling_MatrixScanReportsArePerRun runs a scan matrix where only
// one image has a CRITICAL finding. Each run must be gated on its own report.
func TestErrorHandling_MatrixScanReportsArePerRun(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	files := map[string]string{
		"docker.yml": `
			name: docker
			jobs:
			  scan:
			    strategy:
			      fail-fast: false
			      matrix:
			        image: [app, worker]
			    run: cp fixture-${{ matrix.image }}.json trivy-${{ matrix.image }}.json
			    scan:
			      report: "trivy-${{ matrix.image }}.json"
		`,
		"fixture-app.json":    `{"Results":[{"Target":"app","Vulnerabilities":[{"VulnerabilityID":"CVE-2024-0002","PkgName":"glibc","Severity":"CRITICAL"}]}]}`,
		"fixture-worker.json": `{"Results":[{"Target":"worker","Vulnerabilities":[]}]}`,
	}

	// --- Act ---
	result := testutil.RunIntegrationTest(t, files, nil)

	// --- Assert ---
	require.ErrorIs(t, result.Err, app.ErrWorkflowFailed)
	assert.Contains(t, result.Err.Error(), "CVE-2024-0002")
	testutil.AssertRunStatus(t, result, "docker", "scan (image=app)", plan.Failed)
	testutil.AssertRunStatus(t, result, "docker", "scan (image=worker)", plan.Succeeded)
}

// TestErrorHandling_MatrixScanSharedReportRejected checks that a matrix job
// whose runs would all read the same report is refused before anything runs.
func TestErrorHandling_MatrixScanSharedReportRejected(t *testing.T) {
	t.Parallel()
	// --- Arrange ---
	rec := testutil.NewRecorder(0)
	files := map[string]string{
		"docker.yml": `
			name: docker
			jobs:
			  scan:
			    strategy:
			      matrix:
			        image: [app, worker]
			    run: trivy image -o trivy.json ${{ matrix.image }}
			    scan: { report: trivy.json }
		`,
	}

	// --- Act ---
	result := testutil.RunIntegrationTest(t, files, nil, app.WithExecuteFunc(rec.ExecuteFunc))

	// --- Assert ---
	require.ErrorIs(t, result.Err, app.ErrInvalidConfig)
	assert.Contains(t, result.Err.Error(), "must reference matrix.image or job.run")
	assert.Equal(t, 0, rec.Count())
}
