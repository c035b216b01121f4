package yaml_adapter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/wavegrid/internal/config"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/plan"
	"gopkg.in/yaml.v3"
)

// exprPattern matches a GitHub-style `${{ expr }}` interpolation.
var exprPattern = regexp.MustCompile(`\$\{\{\s*(.*?)\s*\}\}`)

func translateJob(ctx context.Context, file string, keyNode *yaml.Node, jd *jobDoc) (*config.Job, error) {
	id := keyNode.Value
	logger := ctxlog.FromContext(ctx).With("job", id)
	logger.Debug("Translating YAML job to internal config model.")

	job := &config.Job{
		ID:        id,
		DependsOn: jd.Needs,
		FailFast:  true,
		Required:  jd.Required,
		DefRange:  nodeRange(file, keyNode),
	}
	if jd.Strategy.FailFast != nil {
		job.FailFast = *jd.Strategy.FailFast
	}

	switch {
	case jd.Timeout != "" && jd.TimeoutMinutes != 0:
		return nil, fmt.Errorf("job %q: timeout and timeout-minutes are mutually exclusive", id)
	case jd.Timeout != "":
		d, err := time.ParseDuration(jd.Timeout)
		if err != nil {
			return nil, fmt.Errorf("job %q: invalid timeout %q: %w", id, jd.Timeout, err)
		}
		job.Timeout = d
	case jd.TimeoutMinutes != 0:
		job.Timeout = time.Duration(jd.TimeoutMinutes) * time.Minute
	}

	if jd.Strategy.Matrix.Kind != 0 {
		matrix, err := translateMatrix(&jd.Strategy.Matrix)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", id, err)
		}
		job.Matrix = matrix
	}

	if jd.Run.Kind != 0 {
		if jd.Run.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("job %q: line %d: run must be a string", id, jd.Run.Line)
		}
		expr, err := parseTemplate(jd.Run.Value, file, &jd.Run)
		if err != nil {
			return nil, fmt.Errorf("job %q: run: %w", id, err)
		}
		job.Run = expr
	}

	if len(jd.Env) > 0 {
		job.Env = make(map[string]hcl.Expression, len(jd.Env))
		for name, value := range jd.Env {
			expr, err := parseTemplate(value, file, keyNode)
			if err != nil {
				return nil, fmt.Errorf("job %q: env %s: %w", id, name, err)
			}
			job.Env[name] = expr
		}
	}

	if jd.Scan != nil {
		job.Scan = &config.Scan{Threshold: jd.Scan.Threshold}
		if report := &jd.Scan.Report; report.Kind != 0 {
			if report.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("job %q: line %d: scan report must be a string", id, report.Line)
			}
			expr, err := parseTemplate(report.Value, file, report)
			if err != nil {
				return nil, fmt.Errorf("job %q: scan report: %w", id, err)
			}
			job.Scan.Report = expr
		}
	}
	return job, nil
}

// translateMatrix reads `axis: [values...]` pairs in file order.
func translateMatrix(node *yaml.Node) (plan.Matrix, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: matrix must be a mapping", node.Line)
	}

	matrix := make(plan.Matrix, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Value == "include" || key.Value == "exclude" {
			return nil, fmt.Errorf("line %d: matrix %s is not supported", key.Line, key.Value)
		}
		if value.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: matrix axis %q must be a list", value.Line, key.Value)
		}

		axis := plan.Axis{Name: key.Value, Values: make([]string, 0, len(value.Content))}
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: matrix axis %q values must be scalars", item.Line, key.Value)
			}
			axis.Values = append(axis.Values, item.Value)
		}
		matrix = append(matrix, axis)
	}
	return matrix, nil
}

// toTemplate rewrites `${{ expr }}` into HCL's `${expr}` and escapes every
// literal `${` and `%{` so shell syntax passes through untouched.
func toTemplate(s string) string {
	var b strings.Builder
	last := 0
	for _, m := range exprPattern.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(escapeLiteral(s[last:m[0]]))
		b.WriteString("${")
		b.WriteString(s[m[2]:m[3]])
		b.WriteString("}")
		last = m[1]
	}
	b.WriteString(escapeLiteral(s[last:]))
	return b.String()
}

func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, "${", "$${")
	return strings.ReplaceAll(s, "%{", "%%{")
}

func parseTemplate(s, file string, node *yaml.Node) (hcl.Expression, error) {
	start := hcl.Pos{Line: node.Line, Column: node.Column}
	expr, diags := hclsyntax.ParseTemplate([]byte(toTemplate(s)), file, start)
	if diags.HasErrors() {
		return nil, diags
	}
	return expr, nil
}

func nodeRange(file string, node *yaml.Node) hcl.Range {
	pos := hcl.Pos{Line: node.Line, Column: node.Column}
	return hcl.Range{Filename: file, Start: pos, End: pos}
}
