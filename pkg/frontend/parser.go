// Package frontend - Recursive descent parser for spreadsheet formulas
// Design: Predictive parsing, clear error messages, zero backtracking
package frontend

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/GriffinCanCode/formulac/pkg/ir"
)

type Parser struct {
	source  string
	syms    Symbols
	lexer   *Lexer
	current Token
	errors  []string
}

func NewParser(source string, syms Symbols) *Parser {
	return &Parser{source: source, syms: syms}
}

func (p *Parser) Parse() (ir.Node, error) {
	lexer, err := NewLexer(p.source)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", p.source, err)
	}
	p.lexer = lexer
	p.current = lexer.NextToken()

	n := p.comparison()
	if len(p.errors) == 0 && !p.check(EOF) {
		p.error("unexpected " + p.current.String())
	}
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse %q: %s", p.source, strings.Join(p.errors, "; "))
	}
	return n, nil
}

// Binary operator levels, lowest first
var (
	comparisonOps = map[string]ir.Op{
		"=": ir.OpEqual, "<>": ir.OpNotEqual, "<": ir.OpLess,
		"<=": ir.OpLessOrEqual, ">": ir.OpGreater, ">=": ir.OpGreaterOrEqual,
	}
	concatOps         = map[string]ir.Op{"&": ir.OpConcat}
	additiveOps       = map[string]ir.Op{"+": ir.OpPlus, "-": ir.OpMinus}
	multiplicativeOps = map[string]ir.Op{"*": ir.OpTimes, "/": ir.OpDivide}
	powerOps          = map[string]ir.Op{"^": ir.OpExp}
)

// binary parses a left-associative chain of the operators in ops
func (p *Parser) binary(ops map[string]ir.Op, operand func() ir.Node) ir.Node {
	left := operand()
	for p.check(INFIX) {
		op, ok := ops[p.current.Lexeme]
		if !ok {
			break
		}
		p.advance()
		right := operand()
		if left == nil || right == nil {
			return nil
		}
		left = ir.Apply(op, left, right)
	}
	return left
}

func (p *Parser) comparison() ir.Node {
	return p.binary(comparisonOps, p.concat)
}

func (p *Parser) concat() ir.Node {
	return p.binary(concatOps, p.additive)
}

func (p *Parser) additive() ir.Node {
	return p.binary(additiveOps, p.multiplicative)
}

func (p *Parser) multiplicative() ir.Node {
	return p.binary(multiplicativeOps, p.power)
}

func (p *Parser) power() ir.Node {
	return p.binary(powerOps, p.postfix)
}

func (p *Parser) postfix() ir.Node {
	n := p.prefix()
	for p.check(POSTFIX) {
		if p.current.Lexeme != "%" {
			p.error("unknown postfix operator " + p.current.Lexeme)
			return nil
		}
		p.advance()
		if n != nil {
			n = ir.Apply(ir.OpPercent, n)
		}
	}
	return n
}

// prefix binds tighter than '^', so -2^2 is 4
func (p *Parser) prefix() ir.Node {
	if !p.check(PREFIX) {
		return p.primary()
	}
	op := p.current.Lexeme
	p.advance()
	n := p.prefix()
	if n == nil {
		return nil
	}
	switch op {
	case "-":
		return ir.Neg(n)
	case "+":
		return n
	}
	p.error("unknown prefix operator " + op)
	return nil
}

func (p *Parser) primary() ir.Node {
	tok := p.current
	switch tok.Type {
	case NUMBER:
		p.advance()
		d, err := decimal.NewFromString(tok.Lexeme)
		if err != nil {
			p.error("invalid number " + tok.Lexeme)
			return nil
		}
		return ir.Num(d)
	case TEXT:
		p.advance()
		return ir.Str(tok.Lexeme)
	case LOGICAL:
		p.advance()
		return ir.Bool(tok.Lexeme == "TRUE")
	case ERROR:
		p.advance()
		if tok.Lexeme == "#N/A" {
			return ir.Call(ir.FnNA)
		}
		return ir.CallAs(ir.Numeric, ir.FnERROR, ir.Str(tok.Lexeme))
	case NAME:
		p.advance()
		n, ok := p.syms.resolve(tok.Lexeme)
		if !ok {
			p.error("unknown name " + tok.Lexeme)
			return nil
		}
		return n
	case LPAREN:
		p.advance()
		n := p.comparison()
		p.consume(RPAREN, "expected ')'")
		return n
	case FUNC:
		return p.function()
	}
	p.error("unexpected " + tok.String())
	return nil
}

func (p *Parser) function() ir.Node {
	name := p.current.Lexeme
	p.advance()

	var args []ir.Node
	if !p.check(RPAREN) {
		for {
			arg := p.comparison()
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if !p.check(COMMA) {
				break
			}
			p.advance()
		}
	}
	if !p.consume(RPAREN, "expected ')' after arguments of "+name) {
		return nil
	}

	if fold, ok := folds[name]; ok {
		return ir.FoldOver(fold(), args...)
	}
	fn, ok := ir.LookupFn(name)
	if !ok {
		p.error("unknown function " + name)
		return nil
	}
	return ir.Call(fn, args...)
}

// Helper methods

func (p *Parser) advance() {
	p.current = p.lexer.NextToken()
}

func (p *Parser) check(t TokenType) bool {
	return p.current.Type == t
}

func (p *Parser) consume(t TokenType, msg string) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	p.error(msg)
	return false
}

func (p *Parser) error(msg string) {
	p.errors = append(p.errors, msg)
}
