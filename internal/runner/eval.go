package runner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/wavegrid/internal/plan"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// EvalContext builds the variables visible to a run's expressions:
// matrix.<axis>, workflow.name and job.id.
func EvalContext(workflow string, run *plan.JobRun) *hcl.EvalContext {
	matrix := make(map[string]cty.Value, len(run.Coordinate()))
	for _, av := range run.Coordinate() {
		matrix[av.Axis] = cty.StringVal(av.Value)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"matrix": cty.ObjectVal(matrix),
			"workflow": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(workflow),
			}),
			"job": cty.ObjectVal(map[string]cty.Value{
				"id":  cty.StringVal(run.JobID()),
				"run": cty.StringVal(run.ID()),
			}),
		},
	}
}

// evalString evaluates expr and converts the result into a string.
func evalString(expr hcl.Expression, evalCtx *hcl.EvalContext) (string, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", fmt.Errorf("expression at %s evaluated to null", expr.Range())
	}
	strVal, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("expression at %s: cannot convert %s to string: %w", expr.Range(), val.Type().FriendlyName(), err)
	}
	var s string
	if err := gocty.FromCtyValue(strVal, &s); err != nil {
		return "", err
	}
	return s, nil
}

// evalEnv evaluates every env expression into KEY=value pairs, sorted by key.
func evalEnv(env map[string]hcl.Expression, evalCtx *hcl.EvalContext) ([]string, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := evalString(env[k], evalCtx)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out = append(out, k+"="+v)
	}
	return out, nil
}

// matrixEnv exposes the coordinate as MATRIX_<AXIS>=value variables.
func matrixEnv(coord plan.Coordinate) []string {
	out := make([]string, 0, len(coord))
	for _, av := range coord {
		out = append(out, "MATRIX_"+envName(av.Axis)+"="+av.Value)
	}
	return out
}

func envName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
