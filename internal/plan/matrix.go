// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package plan

// ExpandMatrix returns one Pending JobRun per point of the spec's matrix
// cross-product. Axes are combined in declaration order with the last axis
// varying fastest, so {os: [a, b], py: [x, y]} yields
// (a,x) (a,y) (b,x) (b,y). A spec without axes yields a single run with an
// empty coordinate; an axis without values yields no runs at all.
func ExpandMatrix(spec *JobSpec) []*JobRun {
	if len(spec.Matrix) == 0 {
		return []*JobRun{newJobRun(spec, nil)}
	}

	size := spec.Matrix.Size()
	if size == 0 {
		return nil
	}

	runs := make([]*JobRun, 0, size)
	indexes := make([]int, len(spec.Matrix))
	for {
		coord := make(Coordinate, len(spec.Matrix))
		for i, axis := range spec.Matrix {
			coord[i] = AxisValue{Axis: axis.Name, Value: axis.Values[indexes[i]]}
		}
		runs = append(runs, newJobRun(spec, coord))

		// Odometer increment, rightmost axis first.
		i := len(indexes) - 1
		for ; i >= 0; i-- {
			indexes[i]++
			if indexes[i] < len(spec.Matrix[i].Values) {
				break
			}
			indexes[i] = 0
		}
		if i < 0 {
			return runs
		}
	}
}
