// Package config defines the format-agnostic workflow model, along with the
// Loader interface for reading workflows from various file formats.
//
// The `config.Model` is the single source of truth for the `plan` and
// `runner` packages. Concrete loaders, such as for HCL and YAML, are provided
// in separate packages and combined with a CompositeLoader.
package config
