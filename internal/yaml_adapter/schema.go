package yaml_adapter

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// workflowDoc is the top-level document of a YAML workflow file.
type workflowDoc struct {
	Name string `yaml:"name"`
	// Jobs stays a raw node so the job order of the file survives.
	Jobs yaml.Node `yaml:"jobs"`
}

type jobDoc struct {
	Needs    stringList  `yaml:"needs"`
	Strategy strategyDoc `yaml:"strategy"`
	Timeout  string      `yaml:"timeout"`
	// TimeoutMinutes is the GitHub Actions spelling of Timeout.
	TimeoutMinutes int               `yaml:"timeout-minutes"`
	Required       bool              `yaml:"required"`
	Env            map[string]string `yaml:"env"`
	Run            yaml.Node         `yaml:"run"`
	Scan           *scanDoc          `yaml:"scan"`
}

type strategyDoc struct {
	FailFast *bool `yaml:"fail-fast"`
	// Matrix stays a raw node so the axis order of the file survives.
	Matrix yaml.Node `yaml:"matrix"`
}

type scanDoc struct {
	Report    yaml.Node `yaml:"report"`
	Threshold string    `yaml:"threshold"`
}

// stringList accepts both `needs: lint` and `needs: [lint, test]`.
type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = stringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}
