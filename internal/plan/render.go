// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package plan

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// WriteHCL renders the plan and the current status of every run as HCL:
//
//	plan "ci" {
//	  wave "0" {
//	    run "lint" {
//	      job        = "lint"
//	      depends_on = []
//	      matrix     = {}
//	      status     = "succeeded"
//	    }
//	  }
//	}
func (p *ExecutionPlan) WriteHCL(w io.Writer) error {
	f := hclwrite.NewEmptyFile()
	planBody := f.Body().AppendNewBlock("plan", []string{p.Name}).Body()

	for i, wave := range p.Waves {
		if i > 0 {
			planBody.AppendNewline()
		}
		waveBody := planBody.AppendNewBlock("wave", []string{fmt.Sprint(wave.Index)}).Body()
		for _, run := range wave.Runs {
			writeRun(waveBody, run)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plan %q: %w", p.Name, err)
	}
	return nil
}

func writeRun(body *hclwrite.Body, run *JobRun) {
	snap, spec := run.Snapshot(), run.Spec()
	rb := body.AppendNewBlock("run", []string{snap.ID}).Body()
	rb.SetAttributeValue("job", cty.StringVal(snap.Job))
	rb.SetAttributeValue("depends_on", stringList(spec.DependsOn))
	rb.SetAttributeRaw("matrix", coordinateTokens(run.Coordinate()))
	if spec.Required {
		rb.SetAttributeValue("required", cty.True)
	}
	rb.SetAttributeValue("status", cty.StringVal(snap.Status.String()))
	if snap.StartedAt != nil && snap.FinishedAt != nil {
		rb.SetAttributeValue("duration", cty.StringVal(snap.FinishedAt.Sub(*snap.StartedAt).Round(time.Millisecond).String()))
	}
	if snap.Error != "" {
		rb.SetAttributeValue("error", cty.StringVal(snap.Error))
	}
}

func stringList(values []string) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	vals := make([]cty.Value, len(sorted))
	for i, v := range sorted {
		vals[i] = cty.StringVal(v)
	}
	return cty.ListVal(vals)
}

// coordinateTokens renders a coordinate as an object in axis declaration
// order.
func coordinateTokens(coord Coordinate) hclwrite.Tokens {
	attrs := make([]hclwrite.ObjectAttrTokens, 0, len(coord))
	for _, av := range coord {
		name := hclwrite.TokensForValue(cty.StringVal(av.Axis))
		if hclsyntax.ValidIdentifier(av.Axis) {
			name = hclwrite.TokensForIdentifier(av.Axis)
		}
		attrs = append(attrs, hclwrite.ObjectAttrTokens{
			Name:  name,
			Value: hclwrite.TokensForValue(cty.StringVal(av.Value)),
		})
	}
	return hclwrite.TokensForObject(attrs)
}
