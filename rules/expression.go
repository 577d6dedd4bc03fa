package rules

import (
	"fmt"
	"strings"
)

// 条件表达式：
//
//	!a      取反
//	a+b     与
//	a\b     异或
//	a|b     或
//
// 优先级从高到低依次为 ! + \ |，支持括号。
type expr interface {
	eval(isTrue func(id string) bool) bool
}

type idExpr string

func (e idExpr) eval(isTrue func(string) bool) bool { return isTrue(string(e)) }

type notExpr struct{ x expr }

func (e notExpr) eval(isTrue func(string) bool) bool { return !e.x.eval(isTrue) }

type binaryExpr struct {
	op   byte
	l, r expr
}

func (e binaryExpr) eval(isTrue func(string) bool) bool {
	switch e.op {
	case '+':
		return e.l.eval(isTrue) && e.r.eval(isTrue)
	case '|':
		return e.l.eval(isTrue) || e.r.eval(isTrue)
	default:
		return e.l.eval(isTrue) != e.r.eval(isTrue)
	}
}

const operatorChars = "!+|\\()"

func isExpression(s string) bool {
	return strings.ContainsAny(s, operatorChars)
}

type exprParser struct {
	src string
	pos int
}

func parseExpression(src string) (expr, error) {
	p := &exprParser{src: src}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, fmt.Errorf("unexpected %q at %d in %q", p.src[p.pos], p.pos, src)
	}
	return e, nil
}

func (p *exprParser) parseBinary(op byte, next func() (expr, error)) (expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.peek() == op {
		p.pos++
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *exprParser) parseOr() (expr, error) { return p.parseBinary('|', p.parseXor) }

func (p *exprParser) parseXor() (expr, error) { return p.parseBinary('\\', p.parseAnd) }

func (p *exprParser) parseAnd() (expr, error) { return p.parseBinary('+', p.parseUnary) }

func (p *exprParser) parseUnary() (expr, error) {
	switch p.peek() {
	case '!':
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{x}, nil
	case '(':
		p.pos++
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing ')' in %q", p.src)
		}
		p.pos++
		return x, nil
	}

	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune(operatorChars, rune(p.src[p.pos])) && p.src[p.pos] != ' ' {
		p.pos++
	}
	if start == p.pos {
		return nil, fmt.Errorf("expected condition id at %d in %q", start, p.src)
	}
	return idExpr(p.src[start:p.pos]), nil
}

// peek 跳过空白后返回下一个字符，到结尾返回 0
func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}
