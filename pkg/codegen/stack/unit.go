package stack

import "github.com/GriffinCanCode/formulac/pkg/numeric"

// Field is an instance field of a unit
type Field struct {
	Name string
	Kind Kind
}

// Routine is one generated routine. Slot 0 holds the receiver and the
// parameters occupy slots 1..len(Params).
type Routine struct {
	Name      string
	Params    []Kind
	Result    Kind
	Code      []Inst
	Labels    []*Label
	Handlers  []Handler
	MaxLocals int
	// Exported routines implement an output method
	Exported bool
}

// Unit groups the fields and routines of one section
type Unit struct {
	Name     string
	Parent   string
	Fields   []Field
	Routines []*Routine

	routines map[string]*Routine
}

// DeclareUnit creates an empty unit
func DeclareUnit(name, parent string) *Unit {
	return &Unit{Name: name, Parent: parent, routines: make(map[string]*Routine)}
}

// AddField declares a field once; later declarations of the same name are ignored
func (u *Unit) AddField(name string, kind Kind) {
	for _, f := range u.Fields {
		if f.Name == name {
			return
		}
	}
	u.Fields = append(u.Fields, Field{Name: name, Kind: kind})
}

// HasField reports whether the unit declares name
func (u *Unit) HasField(name string) bool {
	for _, f := range u.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// AddRoutine adds r, replacing a routine of the same name
func (u *Unit) AddRoutine(r *Routine) {
	if u.routines == nil {
		u.routines = make(map[string]*Routine)
	}
	if old, ok := u.routines[r.Name]; ok {
		for i, x := range u.Routines {
			if x == old {
				u.Routines[i] = r
			}
		}
	} else {
		u.Routines = append(u.Routines, r)
	}
	u.routines[r.Name] = r
}

// Routine looks up a routine by name
func (u *Unit) Routine(name string) *Routine {
	if u.routines == nil {
		return nil
	}
	return u.routines[name]
}

// Program is the set of units produced by one compilation
type Program struct {
	Units   []*Unit
	Numeric numeric.Type
	// Root and Factory name the root section unit and the factory unit
	Root    string
	Factory string
	// Resettable programs give the root unit a reset routine
	Resettable bool
	// FactoryMethod is an optional extra name for the factory entry point
	FactoryMethod string
}

// Unit looks up a unit by name
func (p *Program) Unit(name string) *Unit {
	for _, u := range p.Units {
		if u.Name == name {
			return u
		}
	}
	return nil
}

// Add appends a unit
func (p *Program) Add(u *Unit) {
	p.Units = append(p.Units, u)
}

// RoutineCount is the number of routines over all units
func (p *Program) RoutineCount() int {
	n := 0
	for _, u := range p.Units {
		n += len(u.Routines)
	}
	return n
}

// Fields the machine maintains on every unit instance
const (
	FieldInputs          = "$inputs"
	FieldParent          = "$parent"
	FieldRoot            = "$root"
	FieldEnvironment     = "$environment"
	FieldDelegate        = "$delegate"
	FieldComputationTime = "$computationTime"
)

// BuiltinFields lists the machine-maintained fields in layout order
var BuiltinFields = []Field{
	{FieldInputs, KindRef},
	{FieldParent, KindRef},
	{FieldRoot, KindRef},
	{FieldEnvironment, KindRef},
	{FieldDelegate, KindRef},
	{FieldComputationTime, KindRef},
}

// Well-known routine names
const (
	RoutineNewComputation = "newComputation"
	RoutineReset          = "reset"
)
