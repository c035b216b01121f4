// Package dag provides the dependency graph underneath an execution plan. It
// knows nothing about jobs or matrices: it stores string IDs and edges,
// detects cycles, and splits the graph into topological layers that the plan
// package turns into waves.
package dag
