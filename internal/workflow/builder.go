package workflow

// StepOption configures a step before it is added to a workflow.
type StepOption func(*Step)

// WithID sets the identifier results are recorded under.
func WithID(id string) StepOption {
	return func(s *Step) {
		s.ID = id
	}
}

// Skippable marks the step's failure as absorbable.
func Skippable() StepOption {
	return func(s *Step) {
		s.Skippable = true
	}
}

// DependsOn declares ids that must have recorded results before the step runs.
func DependsOn(ids ...string) StepOption {
	return func(s *Step) {
		s.DependsOn = append(s.DependsOn, ids...)
	}
}

// When gates the step on a native predicate.
func When(pred Predicate) StepOption {
	return func(s *Step) {
		s.Condition = Condition{Func: pred}
	}
}

// WhenExpr gates the step on a condition expression.
func WhenExpr(expr string) StepOption {
	return func(s *Step) {
		s.Condition = Condition{Expr: expr}
	}
}

// WithCallback attaches a branch callback to a leaf.
func WithCallback(fn Callback) StepOption {
	return func(s *Step) {
		s.Callback = fn
	}
}

// Leaf returns a step that runs command.
func Leaf(name, command string, opts ...StepOption) Step {
	step := Step{Name: name, Command: command}
	for _, opt := range opts {
		opt(&step)
	}
	return step
}

// Group returns a step whose children run concurrently.
func Group(name string, children []Step, opts ...StepOption) Step {
	step := Step{Name: name, Parallel: cloneSteps(children)}
	if step.Parallel == nil {
		step.Parallel = []Step{}
	}
	for _, opt := range opts {
		opt(&step)
	}
	return step
}

// Builder assembles a Definition from fully configured steps.
type Builder struct {
	def Definition
}

// NewBuilder starts a workflow with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{def: Definition{Version: "1", Name: name}}
}

// Version overrides the definition version.
func (b *Builder) Version(version string) *Builder {
	b.def.Version = version
	return b
}

// Add appends steps in order.
func (b *Builder) Add(steps ...Step) *Builder {
	for _, step := range steps {
		b.def.Commands = append(b.def.Commands, step.Clone())
	}
	return b
}

// Build normalizes and validates the assembled definition.
func (b *Builder) Build() (Definition, error) {
	return b.def.Normalized()
}
