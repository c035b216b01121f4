// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It layers
// command-line flags over an optional TOML config file and translates the
// result into the application's internal configuration.
package cli
