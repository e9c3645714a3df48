package config

// Model is the unified, format-agnostic representation of a pipeline file.
type Model struct {
	Tasks []*TaskDefinition
}

// TaskDefinition is the format-agnostic representation of a `task` block.
// Paths are as written in the pipeline, after variable interpolation but
// before resolution against BaseDir.
type TaskDefinition struct {
	Name        string
	Description string
	Inputs      []string
	Outputs     []string
	DependsOn   []string
	Cacheable   bool
	Clean       bool
	Action      *ActionDefinition
	// DeclRange is a "file:line" pointer used in error messages.
	DeclRange string
}

// Action kinds understood by the registry.
const (
	ActionCommand = "command"
	ActionCall    = "call"
	ActionRender  = "render"
)

// ActionDefinition is the format-agnostic representation of an `action`
// block. Only the fields belonging to Kind are populated.
type ActionDefinition struct {
	Kind string

	// command
	Commands []string
	Dir      string
	Env      map[string]string

	// call
	Function string
	// DecodeInput decodes the remaining attributes of a call block into the
	// typed input of the named function.
	DecodeInput func(target any) error

	// render
	Engine    string
	Source    string
	Format    string
	OutputDir string
	Args      []string
}
