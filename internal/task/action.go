package task

import (
	"fmt"
	"strings"
)

// Kind tags the variant of an Action.
type Kind int

const (
	KindCommand Kind = iota
	KindCall
	KindRender
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindCall:
		return "call"
	case KindRender:
		return "render"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Action is the tagged variant of work a task performs. The concrete types
// are ExternalCommand, InProcessCallable and RenderDocument; Execute
// dispatches on them.
type Action interface {
	Kind() Kind
	// Empty reports whether the action would do nothing at all.
	Empty() bool
	// Validate checks variant-specific fields once the action is non-empty.
	Validate() error
}

// ExternalCommand runs each line of Commands in order. Lines are split into
// argv with shell quoting rules but are not passed through a shell.
type ExternalCommand struct {
	Commands []string
	// Dir is the working directory, relative to BaseDir when not absolute.
	Dir string
	Env map[string]string
}

func (c *ExternalCommand) Kind() Kind { return KindCommand }

func (c *ExternalCommand) Empty() bool {
	for _, line := range c.Commands {
		if strings.TrimSpace(line) != "" {
			return false
		}
	}
	return true
}

func (c *ExternalCommand) Validate() error {
	for i, line := range c.Commands {
		if strings.TrimSpace(line) == "" {
			return fmt.Errorf("command %d is blank", i)
		}
	}
	return nil
}

// InProcessCallable invokes a Go function registered under Function.
type InProcessCallable struct {
	Function string
	Input    any
	Fn       Func
}

func (c *InProcessCallable) Kind() Kind { return KindCall }

func (c *InProcessCallable) Empty() bool { return c.Function == "" }

func (c *InProcessCallable) Validate() error {
	if c.Fn == nil {
		return fmt.Errorf("function %q is not bound", c.Function)
	}
	return nil
}

// Render engines.
const (
	EngineNotebook = "notebook"
	EngineLatex    = "latex"
	EngineTemplate = "template"
)

// RenderDocument turns a source document into a rendered artifact.
type RenderDocument struct {
	Engine string
	Source string
	// Format is the nbconvert target format; html when empty.
	Format string
	// OutputDir receives nbconvert output; OUTPUT_DIR when empty.
	OutputDir string
	// Args are extra engine options. For latex they replace the default
	// -xelatex.
	Args []string
}

func (r *RenderDocument) Kind() Kind { return KindRender }

func (r *RenderDocument) Empty() bool { return r.Source == "" }

func (r *RenderDocument) Validate() error {
	switch r.Engine {
	case EngineNotebook, EngineLatex, EngineTemplate:
		return nil
	default:
		return fmt.Errorf("unknown render engine %q", r.Engine)
	}
}
