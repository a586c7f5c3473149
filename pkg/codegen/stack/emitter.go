package stack

// Label is a branch target. Pos is -1 until the label is marked.
type Label struct {
	ID  int
	Pos int
}

// Marked reports whether the label has been placed
func (l *Label) Marked() bool { return l.Pos >= 0 }

// Inst is one stack-machine instruction
type Inst struct {
	Op      Op
	A       int
	B       int
	S       string
	Value   any
	Label   *Label
	Targets []*Label
}

// Handler routes faults raised in [Start, End) to Target with an empty stack.
// An empty Kinds list catches every fault.
type Handler struct {
	Start  *Label
	End    *Label
	Target *Label
	Kinds  []string
}

// Catches reports whether the handler applies to a fault of the given kind
func (h Handler) Catches(kind string) bool {
	if len(h.Kinds) == 0 {
		return true
	}
	for _, k := range h.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Emitter appends instructions to a routine body under construction
type Emitter struct {
	code     []Inst
	labels   []*Label
	handlers []Handler
}

// NewEmitter creates an empty emitter
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Len is the position the next instruction will take
func (e *Emitter) Len() int { return len(e.code) }

// Code returns the instructions emitted so far
func (e *Emitter) Code() []Inst { return e.code }

// Last returns the most recent instruction, or nil
func (e *Emitter) Last() *Inst {
	if len(e.code) == 0 {
		return nil
	}
	return &e.code[len(e.code)-1]
}

// NewLabel creates an unmarked label
func (e *Emitter) NewLabel() *Label {
	l := &Label{ID: len(e.labels), Pos: -1}
	e.labels = append(e.labels, l)
	return l
}

// Mark places l at the current position
func (e *Emitter) Mark(l *Label) {
	l.Pos = len(e.code)
}

// Here creates a label marked at the current position
func (e *Emitter) Here() *Label {
	l := e.NewLabel()
	e.Mark(l)
	return l
}

func (e *Emitter) Emit(inst Inst) {
	e.code = append(e.code, inst)
}

// Op emits an instruction without operands
func (e *Emitter) Op(op Op) {
	e.Emit(Inst{Op: op})
}

func (e *Emitter) Const(v any) {
	e.Emit(Inst{Op: Const, Value: v})
}

func (e *Emitter) Load(slot int) {
	e.Emit(Inst{Op: Load, A: slot})
}

func (e *Emitter) Store(slot int) {
	e.Emit(Inst{Op: Store, A: slot})
}

// Inc adds delta to the int in slot
func (e *Emitter) Inc(slot, delta int) {
	e.Emit(Inst{Op: IInc, A: slot, B: delta})
}

// Branch emits a jump or conditional jump to l
func (e *Emitter) Branch(op Op, l *Label) {
	e.Emit(Inst{Op: op, Label: l})
}

func (e *Emitter) Goto(l *Label) {
	e.Branch(Goto, l)
}

// TableSwitch dispatches on an int key: low selects targets[0], keys outside
// the table go to def.
func (e *Emitter) TableSwitch(low int, targets []*Label, def *Label) {
	e.Emit(Inst{Op: TableSwitch, A: low, Targets: targets, Label: def})
}

func (e *Emitter) GetField(name string) {
	e.Emit(Inst{Op: GetField, S: name})
}

func (e *Emitter) PutField(name string) {
	e.Emit(Inst{Op: PutField, S: name})
}

// NewUnit instantiates unit from the input and parent on the stack
func (e *Emitter) NewUnit(unit string) {
	e.Emit(Inst{Op: NewUnit, S: unit})
}

// Invoke calls a routine of the receiver's unit
func (e *Emitter) Invoke(routine string, argc int, returns bool) {
	e.Emit(Inst{Op: Invoke, S: routine, A: argc, B: b2i(returns)})
}

// InvokeDelegate calls the fallback implementation of an output method
func (e *Emitter) InvokeDelegate(method string, argc int, returns bool) {
	e.Emit(Inst{Op: InvokeDelegate, S: method, A: argc, B: b2i(returns)})
}

// Call invokes a runtime library function; it always pushes one result
func (e *Emitter) Call(fn string, argc int) {
	e.Emit(Inst{Op: Call, S: fn, A: argc})
}

// Input calls an accessor on the input object below argc arguments
func (e *Emitter) Input(method string, argc int) {
	e.Emit(Inst{Op: Input, S: method, A: argc})
}

// Throw raises a runtime fault of kind with a fixed message
func (e *Emitter) Throw(kind, message string) {
	e.Emit(Inst{Op: Throw, S: kind, Value: message})
}

// Return ends the routine, returning the top of stack when value is set
func (e *Emitter) Return(value bool) {
	e.Emit(Inst{Op: Return, A: b2i(value)})
}

// Handle registers a fault handler over [start, end)
func (e *Emitter) Handle(start, end, target *Label, kinds ...string) {
	e.handlers = append(e.handlers, Handler{Start: start, End: end, Target: target, Kinds: kinds})
}

// Finish packages the emitted code as a routine
func (e *Emitter) Finish(name string, params []Kind, result Kind, maxLocals int) *Routine {
	return &Routine{
		Name:      name,
		Params:    params,
		Result:    result,
		Code:      e.code,
		Labels:    e.labels,
		Handlers:  e.handlers,
		MaxLocals: maxLocals,
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
