// Package yaml_adapter loads workflows written in a GitHub-Actions-like YAML
// shape into the format-agnostic config model.
//
// `${{ expr }}` interpolations are rewritten into HCL template syntax and
// parsed with hclsyntax, so YAML and HCL workflows share one evaluation path.
package yaml_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/wavegrid/internal/config"
	"github.com/vk/wavegrid/internal/ctxlog"
	"github.com/vk/wavegrid/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// Extensions handled by the YAML loader.
var Extensions = []string{".yml", ".yaml"}

// Loader is the YAML-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new YAML configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads every YAML workflow file found under the given paths. Each file
// holds exactly one workflow.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, Extensions...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered YAML files.", "count", len(files))

	model := &config.Model{}
	for _, file := range files {
		w, err := l.loadFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		model.Workflows = append(model.Workflows, w)
	}

	logger.Debug("YAML loading complete.", "workflows", len(model.Workflows))
	return model, nil
}

func (l *Loader) loadFile(ctx context.Context, file string) (*config.Workflow, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var doc workflowDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	name := doc.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	w := &config.Workflow{Name: name, Source: file}
	if doc.Jobs.Kind != 0 && doc.Jobs.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: jobs must be a mapping", doc.Jobs.Line)
	}
	// Jobs are kept in file order.
	for i := 0; i+1 < len(doc.Jobs.Content); i += 2 {
		keyNode, valueNode := doc.Jobs.Content[i], doc.Jobs.Content[i+1]

		var jd jobDoc
		if err := valueNode.Decode(&jd); err != nil {
			return nil, fmt.Errorf("job %q: %w", keyNode.Value, err)
		}
		job, err := translateJob(ctx, file, keyNode, &jd)
		if err != nil {
			return nil, err
		}
		w.Jobs = append(w.Jobs, job)
	}
	return w, nil
}
