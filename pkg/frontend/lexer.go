// Package frontend - Lexer for spreadsheet formulas
// Design: efp does the scanning, the lexer flattens its tokens into a stream
// the parser can predict on
package frontend

import (
	"fmt"
	"strings"

	"github.com/xuri/efp"
)

type TokenType int

const (
	EOF TokenType = iota

	// Literals
	NUMBER
	TEXT
	LOGICAL
	ERROR
	NAME

	// Operators
	PREFIX
	INFIX
	POSTFIX

	// Delimiters
	FUNC // function name and its opening parenthesis
	LPAREN
	RPAREN
	COMMA
)

var tokenNames = map[TokenType]string{
	EOF: "end of formula", NUMBER: "number", TEXT: "text", LOGICAL: "logical",
	ERROR: "error", NAME: "name", PREFIX: "prefix operator", INFIX: "operator",
	POSTFIX: "postfix operator", FUNC: "function", LPAREN: "'('", RPAREN: "')'", COMMA: "','",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

type Token struct {
	Type   TokenType
	Lexeme string
}

func (t Token) String() string {
	if t.Lexeme == "" {
		return t.Type.String()
	}
	return fmt.Sprintf("%s %q", t.Type, t.Lexeme)
}

// Lexer hands out the tokens of one formula
type Lexer struct {
	tokens []Token
	pos    int
}

// NewLexer tokenizes source. A leading '=' is optional.
func NewLexer(source string) (*Lexer, error) {
	source = strings.TrimSpace(source)
	source = strings.TrimPrefix(source, "=")
	if source == "" {
		return nil, fmt.Errorf("empty formula")
	}

	ps := efp.ExcelParser()
	raw := ps.Parse(source)
	tokens := make([]Token, 0, len(raw)+1)
	for _, t := range raw {
		tok, keep, err := convert(t)
		if err != nil {
			return nil, err
		}
		if keep {
			tokens = append(tokens, tok)
		}
	}
	tokens = append(tokens, Token{Type: EOF})
	return &Lexer{tokens: tokens}, nil
}

// convert maps one efp token, dropping whitespace
func convert(t efp.Token) (Token, bool, error) {
	switch t.TType {
	case efp.TokenTypeWhitespace:
		return Token{}, false, nil
	case efp.TokenTypeOperand:
		switch t.TSubType {
		case efp.TokenSubTypeNumber:
			return Token{NUMBER, t.TValue}, true, nil
		case efp.TokenSubTypeText:
			return Token{TEXT, t.TValue}, true, nil
		case efp.TokenSubTypeLogical:
			return Token{LOGICAL, strings.ToUpper(t.TValue)}, true, nil
		case efp.TokenSubTypeError:
			return Token{ERROR, t.TValue}, true, nil
		case efp.TokenSubTypeRange:
			return Token{NAME, t.TValue}, true, nil
		}
	case efp.TokenTypeFunction:
		if t.TSubType == efp.TokenSubTypeStart {
			return Token{FUNC, strings.ToUpper(t.TValue)}, true, nil
		}
		return Token{RPAREN, ""}, true, nil
	case efp.TokenTypeSubexpression:
		if t.TSubType == efp.TokenSubTypeStart {
			return Token{LPAREN, ""}, true, nil
		}
		return Token{RPAREN, ""}, true, nil
	case efp.TokenTypeArgument:
		return Token{COMMA, ""}, true, nil
	case efp.TokenTypeOperatorPrefix:
		return Token{PREFIX, t.TValue}, true, nil
	case efp.TokenTypeOperatorInfix:
		return Token{INFIX, t.TValue}, true, nil
	case efp.TokenTypeOperatorPostfix:
		return Token{POSTFIX, t.TValue}, true, nil
	}
	return Token{}, false, fmt.Errorf("unexpected %s token %q", t.TType, t.TValue)
}

// NextToken returns the next token, EOF once the formula is consumed
func (l *Lexer) NextToken() Token {
	tok := l.tokens[l.pos]
	if tok.Type != EOF {
		l.pos++
	}
	return tok
}
