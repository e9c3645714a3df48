package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any
// file. Anything else at the top level is a decode error.
type fileRoot struct {
	Tasks []*taskBlock `hcl:"task,block"`
}

// taskBlock maps to a `task "<name>" { ... }` block.
type taskBlock struct {
	Name        string       `hcl:"name,label"`
	Description *string      `hcl:"description,optional"`
	Inputs      []string     `hcl:"inputs,optional"`
	Outputs     []string     `hcl:"outputs,optional"`
	DependsOn   []string     `hcl:"depends_on,optional"`
	Cacheable   *bool        `hcl:"cacheable,optional"`
	Clean       *bool        `hcl:"clean,optional"`
	Action      *actionBlock `hcl:"action,block"`
	DeclRange   hcl.Range    `hcl:",def_range"`
}

// actionBlock maps to `action "<kind>" { ... }`. The body is decoded once the
// kind is known.
type actionBlock struct {
	Kind string   `hcl:"kind,label"`
	Body hcl.Body `hcl:",remain"`
}

type commandBody struct {
	Run []string          `hcl:"run"`
	Dir *string           `hcl:"dir,optional"`
	Env map[string]string `hcl:"env,optional"`
}

type renderBody struct {
	Engine    string   `hcl:"engine"`
	Source    string   `hcl:"source"`
	Format    *string  `hcl:"format,optional"`
	OutputDir *string  `hcl:"output_dir,optional"`
	Args      []string `hcl:"args,optional"`
}

// callSchema picks the function name out of a call body; every other
// attribute belongs to the function's input.
var callSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{{Name: "function", Required: true}},
}
