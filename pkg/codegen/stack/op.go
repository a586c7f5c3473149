// Package stack implements the target representation: a stack machine whose
// routines are grouped into units, one unit per spreadsheet section.
//
// Design: Instructions carry their operands inline and reference labels that
// are resolved when marked, so emitters never patch code after the fact.
package stack

// Op is an instruction opcode
type Op uint8

const (
	Nop Op = iota

	// Values and locals
	Const // push Value
	Load  // push local A
	Store // pop into local A
	Dup
	Pop
	Swap

	// int arithmetic (indices, counts, comparison results)
	IAdd
	ISub
	IMul
	INeg
	ICmp
	IInc // local A += B

	// float64 arithmetic
	FAdd
	FSub
	FMul
	FDiv
	FNeg
	FCmpL // NaN compares as -1
	FCmpG // NaN compares as +1

	// int64 arithmetic
	LAdd
	LSub
	LMul
	LNeg
	LCmp

	// Conversions
	I2F
	I2L
	L2I
	L2F
	F2I
	F2L

	// Control flow
	Goto
	IfEq // pop int, branch if == 0
	IfNe
	IfLt
	IfGe
	IfGt
	IfLe
	IfTrue // pop bool
	IfFalse
	IfNull
	IfNonNull
	TableSwitch // pop int, branch to Targets[v-A] or Label

	// Objects
	GetField // pop object, push field S
	PutField // pop value, pop object, store field S
	NewUnit  // pop parent, pop input, push new instance of unit S

	// Calls
	Invoke         // pop A args and the receiver, call routine S of the receiver's unit
	InvokeDelegate // pop A args and the receiver, call method S on its output delegate
	Call           // pop A args, call runtime function S
	Input          // pop A args and an input object, call accessor S on it

	// Arrays
	NewArray // pop length, push []any
	ALoad    // pop index, pop array, push element
	AStore   // pop value, pop index, pop array
	ALength  // pop array, push length
	Shape    // pop container, push its shape tag

	// Termination
	Throw  // raise fault S with message Value
	Return // return, popping the result when A == 1
)

var opNames = [...]string{
	Nop: "nop", Const: "const", Load: "load", Store: "store", Dup: "dup", Pop: "pop", Swap: "swap",
	IAdd: "iadd", ISub: "isub", IMul: "imul", INeg: "ineg", ICmp: "icmp", IInc: "iinc",
	FAdd: "fadd", FSub: "fsub", FMul: "fmul", FDiv: "fdiv", FNeg: "fneg", FCmpL: "fcmpl", FCmpG: "fcmpg",
	LAdd: "ladd", LSub: "lsub", LMul: "lmul", LNeg: "lneg", LCmp: "lcmp",
	I2F: "i2f", I2L: "i2l", L2I: "l2i", L2F: "l2f", F2I: "f2i", F2L: "f2l",
	Goto: "goto", IfEq: "ifeq", IfNe: "ifne", IfLt: "iflt", IfGe: "ifge", IfGt: "ifgt", IfLe: "ifle",
	IfTrue: "iftrue", IfFalse: "iffalse", IfNull: "ifnull", IfNonNull: "ifnonnull", TableSwitch: "tableswitch",
	GetField: "getfield", PutField: "putfield", NewUnit: "newunit",
	Invoke: "invoke", InvokeDelegate: "invokedelegate", Call: "call", Input: "input",
	NewArray: "newarray", ALoad: "aload", AStore: "astore", ALength: "alength", Shape: "shape",
	Throw: "throw", Return: "return",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "op?"
}

// IsBranch reports whether the op transfers control to its Label
func (op Op) IsBranch() bool {
	return op >= Goto && op <= IfNonNull
}

// IsConditional reports whether the branch may fall through
func (op Op) IsConditional() bool {
	return op > Goto && op <= IfNonNull
}

// Ends reports whether control never falls through to the next instruction
func (op Op) Ends() bool {
	return op == Goto || op == TableSwitch || op == Throw || op == Return
}

// Invert returns the zero-compare branch with the opposite sense
func (op Op) Invert() Op {
	switch op {
	case IfEq:
		return IfNe
	case IfNe:
		return IfEq
	case IfLt:
		return IfGe
	case IfGe:
		return IfLt
	case IfGt:
		return IfLe
	case IfLe:
		return IfGt
	case IfTrue:
		return IfFalse
	case IfFalse:
		return IfTrue
	case IfNull:
		return IfNonNull
	case IfNonNull:
		return IfNull
	}
	return op
}

// Kind is the static kind of a value slot
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindBool
	KindF64
	KindI64
	KindDec
	KindStr
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindF64:
		return "f64"
	case KindI64:
		return "i64"
	case KindDec:
		return "dec"
	case KindStr:
		return "str"
	case KindRef:
		return "ref"
	}
	return "?"
}
