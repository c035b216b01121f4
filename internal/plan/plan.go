// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package plan

import (
	"fmt"
	"sort"

	"github.com/vk/wavegrid/internal/dag"
)

// Wave is one topological layer of a plan.
type Wave struct {
	Index int
	// Specs are sorted by ID.
	Specs []*JobSpec
	// Runs holds the expanded runs of every spec, grouped by spec in Specs
	// order and in matrix order within a spec.
	Runs []*JobRun
}

// ExecutionPlan is the wave-ordered set of runs for one workflow.
type ExecutionPlan struct {
	Name  string
	Waves []*Wave

	specs map[string]*JobSpec
	runs  map[string][]*JobRun
	wave  map[string]int
}

// Build validates the job specs and lays them out in waves. Every spec lands
// in the wave right after its deepest dependency; specs inside a wave are
// ordered by ID so repeated builds yield the same plan. The specs are copied,
// later changes by the caller do not affect the plan.
//
// Build fails with *InvalidJobError on empty or duplicate IDs and malformed
// matrices, *UnknownDependencyError on references to missing jobs and
// *CycleError on dependency cycles, including self-dependencies.
func Build(name string, specs []*JobSpec) (*ExecutionPlan, error) {
	byID := make(map[string]*JobSpec, len(specs))
	for _, s := range specs {
		if s == nil {
			return nil, &InvalidJobError{Reason: "nil job spec"}
		}
		if s.ID == "" {
			return nil, &InvalidJobError{Reason: "job id must not be empty"}
		}
		if _, dup := byID[s.ID]; dup {
			return nil, &InvalidJobError{Job: s.ID, Reason: "duplicate job id"}
		}
		if err := validateMatrix(s); err != nil {
			return nil, err
		}
		byID[s.ID] = cloneSpec(s)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	graph := dag.New()
	for _, id := range ids {
		graph.AddNode(id)
	}
	for _, id := range ids {
		for _, dep := range byID[id].DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, &UnknownDependencyError{Job: id, Dependency: dep}
			}
			if err := graph.AddEdge(dep, id); err != nil {
				return nil, err
			}
		}
	}

	layers, err := graph.Layers()
	if err != nil {
		return nil, err
	}

	p := &ExecutionPlan{
		Name:  name,
		Waves: make([]*Wave, 0, len(layers)),
		specs: byID,
		runs:  make(map[string][]*JobRun, len(byID)),
		wave:  make(map[string]int, len(byID)),
	}
	for i, layer := range layers {
		w := &Wave{Index: i}
		for _, id := range layer {
			spec := byID[id]
			runs := ExpandMatrix(spec)
			w.Specs = append(w.Specs, spec)
			w.Runs = append(w.Runs, runs...)
			p.runs[id] = runs
			p.wave[id] = i
		}
		p.Waves = append(p.Waves, w)
	}
	return p, nil
}

func validateMatrix(s *JobSpec) error {
	seen := make(map[string]bool, len(s.Matrix))
	for _, axis := range s.Matrix {
		if axis.Name == "" {
			return &InvalidJobError{Job: s.ID, Reason: "matrix axis name must not be empty"}
		}
		if seen[axis.Name] {
			return &InvalidJobError{Job: s.ID, Reason: fmt.Sprintf("duplicate matrix axis %q", axis.Name)}
		}
		seen[axis.Name] = true

		values := make(map[string]bool, len(axis.Values))
		for _, v := range axis.Values {
			if values[v] {
				return &InvalidJobError{Job: s.ID, Reason: fmt.Sprintf("duplicate value %q in matrix axis %q", v, axis.Name)}
			}
			values[v] = true
		}
	}
	return nil
}

func cloneSpec(s *JobSpec) *JobSpec {
	c := *s
	c.DependsOn = append([]string(nil), s.DependsOn...)
	if s.Matrix != nil {
		c.Matrix = make(Matrix, len(s.Matrix))
		for i, axis := range s.Matrix {
			c.Matrix[i] = Axis{Name: axis.Name, Values: append([]string(nil), axis.Values...)}
		}
	}
	return &c
}

// Spec returns the job spec with the given ID.
func (p *ExecutionPlan) Spec(id string) (*JobSpec, bool) {
	s, ok := p.specs[id]
	return s, ok
}

// WaveOf returns the index of the wave holding the given job.
func (p *ExecutionPlan) WaveOf(id string) (int, bool) {
	i, ok := p.wave[id]
	return i, ok
}

// Runs returns the runs of the given job in matrix order.
func (p *ExecutionPlan) Runs(jobID string) []*JobRun {
	return p.runs[jobID]
}

// AllRuns returns every run in wave order.
func (p *ExecutionPlan) AllRuns() []*JobRun {
	var all []*JobRun
	for _, w := range p.Waves {
		all = append(all, w.Runs...)
	}
	return all
}

// Counts returns the number of runs per status.
func (p *ExecutionPlan) Counts() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, r := range p.AllRuns() {
		counts[r.Status()]++
	}
	return counts
}

// Succeeded reports whether the plan finished successfully: every run is
// terminal, none failed, and no run of a Required job was skipped.
func (p *ExecutionPlan) Succeeded() bool {
	for _, r := range p.AllRuns() {
		switch r.Status() {
		case Succeeded:
		case Skipped:
			if r.Spec().Required {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// PlanSnapshot is a serializable copy of a plan's state.
type PlanSnapshot struct {
	Name  string          `json:"name"`
	Waves [][]RunSnapshot `json:"waves"`
}

// Snapshot copies the state of every run, grouped by wave.
func (p *ExecutionPlan) Snapshot() PlanSnapshot {
	s := PlanSnapshot{Name: p.Name, Waves: make([][]RunSnapshot, len(p.Waves))}
	for i, w := range p.Waves {
		runs := make([]RunSnapshot, len(w.Runs))
		for j, r := range w.Runs {
			runs[j] = r.Snapshot()
		}
		s.Waves[i] = runs
	}
	return s
}
