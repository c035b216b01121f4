package yaml_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/wavegrid/internal/plan"
	"github.com/zclconf/go-cty/cty"
)

const dockerWorkflow = `
name: docker
jobs:
  build:
    run: docker build -t app .
  scan:
    needs: build
    required: true
    timeout: 5m
    strategy:
      fail-fast: false
      matrix:
        image: [app, worker]
        arch: [amd64, "arm64"]
    env:
      IMAGE: "${{ matrix.image }}"
    run: |
      trivy image --format json -o trivy-${{ matrix.image }}.json ${{matrix.image}}:latest
      echo "${HOME} %{not-a-directive}"
    scan:
      report: "trivy-${{ matrix.image }}-${{ matrix.arch }}.json"
      threshold: high
  publish:
    needs: [build, scan]
    timeout-minutes: 2
    run: docker push app
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func evalString(t *testing.T, expr hcl.Expression, vars map[string]cty.Value) string {
	t.Helper()
	val, diags := expr.Value(&hcl.EvalContext{Variables: vars})
	require.False(t, diags.HasErrors(), diags.Error())
	return val.AsString()
}

func TestLoader_Load(t *testing.T) {
	path := writeFile(t, t.TempDir(), "docker.yml", dockerWorkflow)

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, model.Workflows, 1)

	w := model.Workflows[0]
	assert.Equal(t, "docker", w.Name)
	assert.Equal(t, path, w.Source)
	require.Len(t, w.Jobs, 3)

	build, scan, publish := w.Jobs[0], w.Jobs[1], w.Jobs[2]
	assert.Equal(t, "build", build.ID, "jobs keep file order")
	assert.True(t, build.FailFast)
	assert.Empty(t, build.DependsOn)

	assert.Equal(t, []string{"build"}, scan.DependsOn)
	assert.False(t, scan.FailFast)
	assert.True(t, scan.Required)
	assert.Equal(t, 5*time.Minute, scan.Timeout)
	wantMatrix := plan.Matrix{
		{Name: "image", Values: []string{"app", "worker"}},
		{Name: "arch", Values: []string{"amd64", "arm64"}},
	}
	if diff := cmp.Diff(wantMatrix, scan.Matrix); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, scan.Scan)
	assert.Equal(t, "high", scan.Scan.Threshold)
	assert.Equal(t, 6, scan.DefRange.Start.Line)

	vars := map[string]cty.Value{
		"matrix": cty.ObjectVal(map[string]cty.Value{
			"image": cty.StringVal("worker"),
			"arch":  cty.StringVal("arm64"),
		}),
	}
	assert.Equal(t,
		"trivy image --format json -o trivy-worker.json worker:latest\necho \"${HOME} %{not-a-directive}\"\n",
		evalString(t, scan.Run, vars))
	assert.Equal(t, "trivy-worker-arm64.json", evalString(t, scan.Scan.Report, vars))
	require.Contains(t, scan.Env, "IMAGE")
	assert.Equal(t, "worker", evalString(t, scan.Env["IMAGE"], vars))

	assert.Equal(t, []string{"build", "scan"}, publish.DependsOn)
	assert.Equal(t, 2*time.Minute, publish.Timeout)

	assert.NoError(t, model.Validate())
}

func TestLoader_NameDefaultsToFileName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "release.yaml", "jobs:\n  tag:\n    run: git tag v1\n")
	writeFile(t, dir, "ci.hcl", `workflow "ci" {}`)

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, model.Workflows, 1)
	assert.Equal(t, "release", model.Workflows[0].Name)
	assert.Equal(t, "git tag v1", evalString(t, model.Workflows[0].Jobs[0].Run, nil))
}

func TestLoader_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			content: "jobs: [",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "jobs is a list",
			content: "jobs:\n  - lint\n",
			wantErr: "jobs must be a mapping",
		},
		{
			name:    "matrix include",
			content: "jobs:\n  t:\n    run: x\n    strategy:\n      matrix:\n        include: [a]\n",
			wantErr: "matrix include is not supported",
		},
		{
			name:    "axis is scalar",
			content: "jobs:\n  t:\n    run: x\n    strategy:\n      matrix:\n        os: ubuntu\n",
			wantErr: `matrix axis "os" must be a list`,
		},
		{
			name:    "bad timeout",
			content: "jobs:\n  t:\n    run: x\n    timeout: later\n",
			wantErr: `invalid timeout "later"`,
		},
		{
			name:    "both timeouts",
			content: "jobs:\n  t:\n    run: x\n    timeout: 1m\n    timeout-minutes: 1\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "run is a list",
			content: "jobs:\n  t:\n    run: [a, b]\n",
			wantErr: "run must be a string",
		},
		{
			name:    "needs is a mapping",
			content: "jobs:\n  t:\n    run: x\n    needs: {a: b}\n",
			wantErr: "expected a string or a list of strings",
		},
		{
			name:    "scan report is a list",
			content: "jobs:\n  t:\n    run: x\n    scan:\n      report: [a]\n",
			wantErr: "scan report must be a string",
		},
		{
			name:    "broken interpolation",
			content: "jobs:\n  t:\n    run: echo ${{ matrix. }}\n",
			wantErr: "run:",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "wf.yml", tc.content)
			_, err := NewLoader().Load(context.Background(), path)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestToTemplate(t *testing.T) {
	for in, want := range map[string]string{
		"plain":                         "plain",
		"${{ matrix.os }}":              "${matrix.os}",
		"a ${{matrix.os}} b":            "a ${matrix.os} b",
		"echo ${HOME}":                  "echo $${HOME}",
		"%{ if }":                       "%%{ if }",
		"${{ job.id }}-${{ matrix.py }}": "${job.id}-${matrix.py}",
	} {
		assert.Equal(t, want, toTemplate(in), in)
	}
}
