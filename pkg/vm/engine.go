package vm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/linker"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
)

// Native function names available to generated code besides the runtime library
const (
	NativeNewDelegate          = "delegate.new"
	NativeNewDelegateWithInput = "delegate.newWithInput"
)

// Engine creates computations of one compiled program
type Engine struct {
	m       *Machine
	env     *Environment
	outType *ir.OutputType
	factory *Object
}

// Option configures an engine
type Option func(*Engine)

// WithEnvironment sets the environment all computations see
func WithEnvironment(env *Environment) Option {
	return func(e *Engine) { e.env = env }
}

// WithOutputType supplies the constructors of the fallback implementation
func WithOutputType(t *ir.OutputType) Option {
	return func(e *Engine) { e.outType = t }
}

// WithRegistry replaces the runtime library
func WithRegistry(r *stdlib.Registry) Option {
	return func(e *Engine) { e.m.lib = r }
}

// Load links prog and prepares an engine for it
func Load(prog *stack.Program, opts ...Option) (*Engine, error) {
	e := &Engine{
		m:   &Machine{lib: stdlib.Default(), ctx: stdlib.NewContext(prog.Numeric)},
		env: stdlib.DefaultEnvironment(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.m.natives = map[string]native{
		NativeNewDelegate:          e.newDelegate,
		NativeNewDelegateWithInput: e.newDelegateWithInput,
	}

	img, err := linker.Link(prog, func(name string) bool {
		_, ok := e.m.natives[name]
		return ok || e.m.lib.Has(name)
	})
	if err != nil {
		return nil, err
	}
	e.m.img = img
	e.factory = e.m.newObject(img.Factory)
	e.factory.setField(stack.FieldRoot, e.factory)
	e.factory.setField(stack.FieldEnvironment, e.env)
	return e, nil
}

// Image is the linked program
func (e *Engine) Image() *linker.Image { return e.m.img }

// NewComputation creates the root section instance bound to input
func (e *Engine) NewComputation(input any) (*Computation, error) {
	return e.create(stack.RoutineNewComputation, input)
}

// NewComputationAs calls the factory through its user-named method
func (e *Engine) NewComputationAs(method string, input any) (*Computation, error) {
	if method != e.m.img.Program.FactoryMethod || method == "" {
		return nil, fmt.Errorf("vm: factory has no method %q", method)
	}
	if e.m.img.Factory.Routine(method) == nil {
		return e.create(stack.RoutineNewComputation, input)
	}
	return e.create(method, input)
}

func (e *Engine) create(routine string, input any) (*Computation, error) {
	r := e.m.img.Factory.Routine(routine)
	v, err := e.m.enter(e.factory, r, []any{input})
	if err != nil {
		return nil, err
	}
	root, ok := v.(*Object)
	if !ok {
		return nil, errors.Errorf("vm: factory returned %T", v)
	}
	return &Computation{Object: root}, nil
}

func (e *Engine) newDelegate([]any) (any, error) {
	if e.outType == nil || e.outType.New == nil {
		return nil, errors.New("vm: output type has no default constructor")
	}
	return e.outType.New(), nil
}

func (e *Engine) newDelegateWithInput(args []any) (any, error) {
	if e.outType == nil || e.outType.NewWithInput == nil {
		return nil, errors.New("vm: output type has no input constructor")
	}
	return e.outType.NewWithInput(args[0]), nil
}

// Computation is the root section instance of one input. It is not safe for
// concurrent use.
type Computation struct {
	*Object
}

// Reset clears cached values, section instances and the computation time
func (c *Computation) Reset() error {
	r := c.unit.Routine(stack.RoutineReset)
	if r == nil {
		return errors.New("vm: computation is not resettable")
	}
	_, err := c.m.enter(c.Object, r, nil)
	return err
}
