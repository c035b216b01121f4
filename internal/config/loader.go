package config

import (
	"context"
	"fmt"

	"github.com/vk/wavegrid/internal/ctxlog"
)

// Loader is the interface for a format-specific workflow loader.
type Loader interface {
	// Load reads every workflow file of its format found under the given
	// paths and translates them into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// CompositeLoader merges the workflows of several loaders into one model.
type CompositeLoader struct {
	loaders []Loader
}

// NewCompositeLoader creates a loader that delegates to each given loader in
// turn.
func NewCompositeLoader(loaders ...Loader) *CompositeLoader {
	return &CompositeLoader{loaders: loaders}
}

// Load runs every loader over the same paths, merges the results and
// validates the merged model.
func (c *CompositeLoader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	merged := &Model{}
	for _, l := range c.loaders {
		m, err := l.Load(ctx, paths...)
		if err != nil {
			return nil, err
		}
		merged.Workflows = append(merged.Workflows, m.Workflows...)
	}

	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("Configuration loaded.", "workflows", len(merged.Workflows))
	return merged, nil
}
