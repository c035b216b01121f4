// Package app wires workflow loading, planning and execution together. It
// owns the App lifecycle: loading workflow files, building one execution plan
// per workflow, running every plan with the configured observers, and serving
// the health, status and metrics endpoints while runs are in flight.
package app
