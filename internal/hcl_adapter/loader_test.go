package hcl_adapter

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
	"github.com/vk/wavegrid/internal/config"
	"github.com/vk/wavegrid/internal/plan"
	"github.com/zclconf/go-cty/cty"
)

const ciWorkflow = `
workflow "ci" {
  job "lint" {
    run = "ruff check ."
  }

  job "test" {
    depends_on = ["lint"]
    required   = true
    timeout    = "10m"

    matrix {
      py = ["3.10", "3.11", 3.12]
      os = ["ubuntu", "macos", "windows"]
    }

    env = {
      PYTHON = matrix.py
      "CI"   = true
    }
    run = "pytest --os=${matrix.os}"
  }

  job "scan" {
    depends_on = ["test"]
    fail_fast  = false
    run        = "trivy image --format json -o trivy.json app:latest"

    scan {
      report    = "trivy.json"
      threshold = "CRITICAL"
    }
  }
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadOne(t *testing.T, content string) *config.Workflow {
	t.Helper()
	path := writeFile(t, t.TempDir(), "ci.hcl", content)
	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, model.Workflows, 1)
	return model.Workflows[0]
}

func TestLoader_Load(t *testing.T) {
	w := loadOne(t, ciWorkflow)

	assert.Equal(t, "ci", w.Name)
	assert.Equal(t, "ci.hcl", filepath.Base(w.Source))
	require.Len(t, w.Jobs, 3)

	lint, test, scan := w.Jobs[0], w.Jobs[1], w.Jobs[2]

	assert.Equal(t, "lint", lint.ID)
	assert.True(t, lint.FailFast, "fail_fast defaults to true")
	assert.False(t, lint.Required)
	assert.Nil(t, lint.Env)
	assert.Nil(t, lint.Scan)
	assert.Empty(t, lint.Matrix)
	require.NotNil(t, lint.Run)

	assert.Equal(t, []string{"lint"}, test.DependsOn)
	assert.True(t, test.Required)
	assert.Equal(t, 10*time.Minute, test.Timeout)
	wantMatrix := plan.Matrix{
		{Name: "py", Values: []string{"3.10", "3.11", "3.12"}},
		{Name: "os", Values: []string{"ubuntu", "macos", "windows"}},
	}
	if diff := cmp.Diff(wantMatrix, test.Matrix); diff != "" {
		t.Errorf("matrix mismatch, axes must keep declaration order (-want +got):\n%s", diff)
	}
	assert.Contains(t, test.Env, "PYTHON")
	assert.Contains(t, test.Env, "CI")
	assert.Equal(t, 7, test.DefRange.Start.Line)

	assert.False(t, scan.FailFast)
	require.NotNil(t, scan.Scan)
	assert.Equal(t, "CRITICAL", scan.Scan.Threshold)
	report, diags := scan.Scan.Report.Value(nil)
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, "trivy.json", report.AsString())

	assert.NoError(t, (&config.Model{Workflows: []*config.Workflow{w}}).Validate())
}

func TestLoader_MatrixScanReportIsPerRun(t *testing.T) {
	w := loadOne(t, `
workflow "docker" {
  job "scan" {
    matrix {
      image = ["app", "worker"]
    }
    run = "trivy image -o trivy-${matrix.image}.json ${matrix.image}"
    scan {
      report = "trivy-${matrix.image}.json"
    }
  }
}
`)
	scan := w.Jobs[0]
	require.NotNil(t, scan.Scan)

	vars := map[string]cty.Value{
		"matrix": cty.ObjectVal(map[string]cty.Value{"image": cty.StringVal("worker")}),
	}
	report, diags := scan.Scan.Report.Value(&hcl.EvalContext{Variables: vars})
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, "trivy-worker.json", report.AsString())
	assert.NoError(t, (&config.Model{Workflows: []*config.Workflow{w}}).Validate())
}

func TestLoader_Discovery(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ci.hcl", ciWorkflow)
	writeFile(t, dir, "nested/release.hcl", `
workflow "release" {
  job "tag" {
    run = "git tag"
  }
}

workflow "docs" {
  job "build" {
    run = "mkdocs build"
  }
}
`)
	writeFile(t, dir, "docker.yml", "name: docker\n")

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	var names []string
	for _, w := range model.Workflows {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"ci", "release", "docs"}, names)
}

func TestLoader_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "syntax error",
			content: `workflow "ci" {`,
			wantErr: "failed to parse HCL file",
		},
		{
			name: "missing run",
			content: `workflow "ci" {
  job "lint" {
  }
}`,
			wantErr: "failed to decode HCL file",
		},
		{
			name: "unknown attribute",
			content: `workflow "ci" {
  job "lint" {
    run   = "x"
    steps = 3
  }
}`,
			wantErr: "failed to decode HCL file",
		},
		{
			name: "bad timeout",
			content: `workflow "ci" {
  job "lint" {
    run     = "x"
    timeout = "soon"
  }
}`,
			wantErr: `invalid timeout "soon"`,
		},
		{
			name: "matrix axis is not a list",
			content: `workflow "ci" {
  job "t" {
    run = "x"
    matrix {
      os = "ubuntu"
    }
  }
}`,
			wantErr: `matrix axis "os"`,
		},
		{
			name: "env is not an object",
			content: `workflow "ci" {
  job "t" {
    run = "x"
    env = "A=1"
  }
}`,
			wantErr: "env must be an object",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "ci.hcl", tc.content)
			_, err := NewLoader().Load(context.Background(), path)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoader_VariableReferencesAreValidated(t *testing.T) {
	w := loadOne(t, `
workflow "ci" {
  job "test" {
    matrix {
      os = ["a"]
    }
    run = "echo ${matrix.arch}"
  }
}
`)
	err := (&config.Model{Workflows: []*config.Workflow{w}}).Validate()
	assert.ErrorContains(t, err, `unknown matrix axis "arch"`)

	w = loadOne(t, `
workflow "ci" {
  job "test" {
    run = "echo ${secrets.token}"
  }
}
`)
	err = (&config.Model{Workflows: []*config.Workflow{w}}).Validate()
	assert.ErrorContains(t, err, `unknown variable "secrets"`)
}
