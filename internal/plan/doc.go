// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package plan holds the data model of a workflow run: the immutable job
// definitions (JobSpec), their concrete matrix instantiations (JobRun), and
// the wave-ordered ExecutionPlan that ties them together.
//
// # Core Concepts
//
//   - JobSpec: a named unit of work with dependencies, an optional matrix and
//     a fail-fast policy. Defined once at plan-build time and never mutated.
//
//   - JobRun: one point in a JobSpec's matrix cross-product. Its status and
//     timestamps are the only mutable state in a plan, and they freeze once
//     the run reaches a terminal state.
//
//   - Wave: the JobSpecs of one topological layer together with all of their
//     runs. Wave N+1 only contains jobs whose dependencies all live in waves
//     0..N.
//
// Why keep the model separate from the executor?
//
// The executor decides when a run starts and how its outcome is recorded, but
// the shape of the plan (which runs exist, in which order they may start) is
// a pure function of the job definitions. Keeping it here makes Build
// deterministic and testable without any scheduling involved, and lets the
// same plan be rendered for a dry run before anything executes.
package plan
