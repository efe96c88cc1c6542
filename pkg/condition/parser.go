package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenString
	tokenNumber
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenComma
	tokenDot
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) scan() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF}, nil
	}

	c := l.input[l.pos]
	switch c {
	case '(':
		l.pos++
		return token{kind: tokenLParen, text: "("}, nil
	case ')':
		l.pos++
		return token{kind: tokenRParen, text: ")"}, nil
	case '[':
		l.pos++
		return token{kind: tokenLBracket, text: "["}, nil
	case ']':
		l.pos++
		return token{kind: tokenRBracket, text: "]"}, nil
	case ',':
		l.pos++
		return token{kind: tokenComma, text: ","}, nil
	case '.':
		l.pos++
		return token{kind: tokenDot, text: "."}, nil
	case '\'':
		return l.scanString()
	}

	if c == '-' || (c >= '0' && c <= '9') {
		return l.scanNumber()
	}
	if isIdentRune(rune(c), true) {
		start := l.pos
		for l.pos < len(l.input) && isIdentRune(rune(l.input[l.pos]), false) {
			l.pos++
		}
		return token{kind: tokenIdent, text: l.input[start:l.pos]}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q at position %d", c, l.pos)
}

// Strings are single quoted, with '' escaping a literal quote.
func (l *lexer) scanString() (token, error) {
	var b strings.Builder
	l.pos++
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '\'' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
				b.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			return token{kind: tokenString, text: b.String()}, nil
		}
		b.WriteByte(c)
		l.pos++
	}
	return token{}, fmt.Errorf("unterminated string literal")
}

func (l *lexer) scanNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && (l.input[l.pos] == '.' || (l.input[l.pos] >= '0' && l.input[l.pos] <= '9')) {
		l.pos++
	}
	text := l.input[start:l.pos]
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return token{}, fmt.Errorf("invalid number %q", text)
	}
	return token{kind: tokenNumber, text: text}, nil
}

func isIdentRune(r rune, first bool) bool {
	if unicode.IsLetter(r) || r == '_' {
		return true
	}
	return !first && unicode.IsDigit(r)
}

type parser struct {
	lex lexer
	tok token
	err error
}

func (p *parser) next() {
	if p.err != nil {
		return
	}
	p.tok, p.err = p.lex.scan()
}

func (p *parser) parseExpr() (Expr, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch p.tok.kind {
	case tokenString:
		e := litExpr{v: p.tok.text}
		p.next()
		return e, p.err
	case tokenNumber:
		f, _ := strconv.ParseFloat(p.tok.text, 64)
		p.next()
		return litExpr{v: f}, p.err
	case tokenIdent:
		name := p.tok.text
		p.next()
		if p.err != nil {
			return nil, p.err
		}
		switch {
		case strings.EqualFold(name, "true"):
			return litExpr{v: true}, nil
		case strings.EqualFold(name, "false"):
			return litExpr{v: false}, nil
		case strings.EqualFold(name, "variables"):
			return p.parseVariableRef()
		case p.tok.kind == tokenLParen:
			return p.parseCall(name)
		}
		return nil, fmt.Errorf("expected function call or literal, got %q", name)
	}
	return nil, fmt.Errorf("unexpected token %q", p.tok.text)
}

// variables['Some.Name'] or variables.Name
func (p *parser) parseVariableRef() (Expr, error) {
	switch p.tok.kind {
	case tokenLBracket:
		p.next()
		if p.err != nil {
			return nil, p.err
		}
		if p.tok.kind != tokenString {
			return nil, fmt.Errorf("expected string inside variables[...], got %q", p.tok.text)
		}
		name := p.tok.text
		p.next()
		if p.err != nil {
			return nil, p.err
		}
		if p.tok.kind != tokenRBracket {
			return nil, fmt.Errorf("expected closing bracket after variables[%q]", name)
		}
		p.next()
		return varExpr{name: name}, p.err
	case tokenDot:
		p.next()
		if p.err != nil {
			return nil, p.err
		}
		if p.tok.kind != tokenIdent {
			return nil, fmt.Errorf("expected variable name after variables., got %q", p.tok.text)
		}
		name := p.tok.text
		p.next()
		return varExpr{name: name}, p.err
	}
	return nil, fmt.Errorf("expected variables[...] or variables.name")
}

func (p *parser) parseCall(name string) (Expr, error) {
	p.next() // consume '('
	if p.err != nil {
		return nil, p.err
	}
	call := callExpr{name: name}
	if p.tok.kind == tokenRParen {
		p.next()
		return call, p.err
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)
		switch p.tok.kind {
		case tokenComma:
			p.next()
			if p.err != nil {
				return nil, p.err
			}
		case tokenRParen:
			p.next()
			return call, p.err
		default:
			return nil, fmt.Errorf("expected ',' or ')' in arguments of %s, got %q", name, p.tok.text)
		}
	}
}
