package ir

import "strings"

// Fn is a spreadsheet function symbol
type Fn int

const (
	FnIF Fn = iota
	FnNOT
	FnAND
	FnOR
	FnINDEX
	FnMATCH
	FnISERROR
	FnISERR
	FnISNA
	FnNA
	FnERROR

	FnABS
	FnROUND
	FnROUNDUP
	FnROUNDDOWN
	FnTRUNC
	FnINT
	FnMOD
	FnSQRT
	FnPOWER
	FnSIGN
	FnEXP
	FnLN
	FnLOG10
	FnPI

	FnLEN
	FnLOWER
	FnUPPER
	FnTRIM
	FnLEFT
	FnRIGHT
	FnMID
	FnCONCATENATE
	FnEXACT
	FnFIND
	FnSEARCH
	FnSUBSTITUTE
	FnREPT
	FnVALUE
	FnTEXT
	FnN

	FnNOW
	FnTODAY
	FnDATE
	FnYEAR
	FnMONTH
	FnDAY
)

// FnInfo describes how a function is compiled
type FnInfo struct {
	Name string
	// NeedsEnvironment marks locale or time-sensitive functions
	NeedsEnvironment bool
	// Volatile functions change value between computations
	Volatile bool
	// ReturnsInt functions produce an index rather than a number
	ReturnsInt bool
}

var fnInfos = map[Fn]FnInfo{
	FnIF:          {Name: "IF"},
	FnNOT:         {Name: "NOT"},
	FnAND:         {Name: "AND"},
	FnOR:          {Name: "OR"},
	FnINDEX:       {Name: "INDEX"},
	FnMATCH:       {Name: "MATCH"},
	FnISERROR:     {Name: "ISERROR"},
	FnISERR:       {Name: "ISERR"},
	FnISNA:        {Name: "ISNA"},
	FnNA:          {Name: "NA"},
	FnERROR:       {Name: "ERROR"},
	FnABS:         {Name: "ABS"},
	FnROUND:       {Name: "ROUND"},
	FnROUNDUP:     {Name: "ROUNDUP"},
	FnROUNDDOWN:   {Name: "ROUNDDOWN"},
	FnTRUNC:       {Name: "TRUNC"},
	FnINT:         {Name: "INT"},
	FnMOD:         {Name: "MOD"},
	FnSQRT:        {Name: "SQRT"},
	FnPOWER:       {Name: "POWER"},
	FnSIGN:        {Name: "SIGN"},
	FnEXP:         {Name: "EXP"},
	FnLN:          {Name: "LN"},
	FnLOG10:       {Name: "LOG10"},
	FnPI:          {Name: "PI"},
	FnLEN:         {Name: "LEN"},
	FnLOWER:       {Name: "LOWER", NeedsEnvironment: true},
	FnUPPER:       {Name: "UPPER", NeedsEnvironment: true},
	FnTRIM:        {Name: "TRIM"},
	FnLEFT:        {Name: "LEFT"},
	FnRIGHT:       {Name: "RIGHT"},
	FnMID:         {Name: "MID"},
	FnCONCATENATE: {Name: "CONCATENATE"},
	FnEXACT:       {Name: "EXACT"},
	FnFIND:        {Name: "FIND"},
	FnSEARCH:      {Name: "SEARCH", NeedsEnvironment: true},
	FnSUBSTITUTE:  {Name: "SUBSTITUTE"},
	FnREPT:        {Name: "REPT"},
	FnVALUE:       {Name: "VALUE", NeedsEnvironment: true},
	FnTEXT:        {Name: "TEXT", NeedsEnvironment: true},
	FnN:           {Name: "N"},
	FnNOW:         {Name: "NOW", NeedsEnvironment: true, Volatile: true},
	FnTODAY:       {Name: "TODAY", NeedsEnvironment: true, Volatile: true},
	FnDATE:        {Name: "DATE", NeedsEnvironment: true},
	FnYEAR:        {Name: "YEAR", NeedsEnvironment: true},
	FnMONTH:       {Name: "MONTH", NeedsEnvironment: true},
	FnDAY:         {Name: "DAY", NeedsEnvironment: true},
}

var fnByName map[string]Fn

func init() {
	fnByName = make(map[string]Fn, len(fnInfos))
	for fn, info := range fnInfos {
		fnByName[info.Name] = fn
	}
}

// Info returns the compile-time description of the function
func (fn Fn) Info() FnInfo {
	return fnInfos[fn]
}

func (fn Fn) String() string {
	if info, ok := fnInfos[fn]; ok {
		return info.Name
	}
	return "?"
}

// LookupFn finds a function by its case-insensitive spreadsheet name
func LookupFn(name string) (Fn, bool) {
	fn, ok := fnByName[strings.ToUpper(name)]
	return fn, ok
}
