package stdlib

import "fmt"

// FaultKind classifies runtime failures of generated code
type FaultKind string

const (
	NotAvailable    FaultKind = "NotAvailable"
	Value           FaultKind = "Value"
	DivZero         FaultKind = "DivZero"
	Num             FaultKind = "Num"
	Ref             FaultKind = "Ref"
	Name            FaultKind = "Name"
	IndexOutOfRange FaultKind = "IndexOutOfRange"
	IllegalArgument FaultKind = "IllegalArgument"
	Arithmetic      FaultKind = "Arithmetic"
)

var faultCodes = map[FaultKind]string{
	NotAvailable:    "#N/A",
	Value:           "#VALUE!",
	DivZero:         "#DIV/0!",
	Num:             "#NUM!",
	Ref:             "#REF!",
	Name:            "#NAME?",
	IndexOutOfRange: "#REF!",
	IllegalArgument: "#VALUE!",
	Arithmetic:      "#NUM!",
}

// Code is the spreadsheet error code of the kind
func (k FaultKind) Code() string {
	if c, ok := faultCodes[k]; ok {
		return c
	}
	return "#VALUE!"
}

// KindOfCode maps a spreadsheet error code back to a fault kind
func KindOfCode(code string) FaultKind {
	switch code {
	case "#N/A":
		return NotAvailable
	case "#DIV/0!":
		return DivZero
	case "#NUM!":
		return Num
	case "#REF!":
		return Ref
	case "#NAME?":
		return Name
	}
	return Value
}

// Fault is a typed runtime failure raised by generated code
type Fault struct {
	Kind    FaultKind
	Message string
}

// NewFault creates a fault with a formatted message
func NewFault(kind FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (f *Fault) Error() string {
	return f.Kind.Code() + " " + f.Message
}

// IsError reports whether ISERR treats the fault as an error; only
// not-available faults are excluded.
func (f *Fault) IsError() bool {
	return f.Kind != NotAvailable
}
