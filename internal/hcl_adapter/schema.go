package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Workflows []*workflowBlock `hcl:"workflow,block"`
}

// workflowBlock is the HCL schema of `workflow "<name>" { ... }`.
type workflowBlock struct {
	Name string      `hcl:"name,label"`
	Jobs []*jobBlock `hcl:"job,block"`
}

// jobBlock is the HCL schema of `job "<id>" { ... }`.
type jobBlock struct {
	ID        string         `hcl:"id,label"`
	DependsOn []string       `hcl:"depends_on,optional"`
	FailFast  *bool          `hcl:"fail_fast,optional"`
	Required  bool           `hcl:"required,optional"`
	Timeout   string         `hcl:"timeout,optional"`
	Run       hcl.Expression `hcl:"run"`
	Env       hcl.Expression `hcl:"env,optional"`
	Matrix    *matrixBlock   `hcl:"matrix,block"`
	Scan      *scanBlock     `hcl:"scan,block"`
	Body      hcl.Body       `hcl:",body"`
}

// matrixBlock holds one attribute per axis. Axes are read from the raw body
// so their declaration order survives.
type matrixBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// scanBlock is the HCL schema of the vulnerability gate.
type scanBlock struct {
	Report    hcl.Expression `hcl:"report"`
	Threshold string         `hcl:"threshold,optional"`
}
