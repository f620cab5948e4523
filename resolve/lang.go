// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// lang.go contains the parser for the contents of a {{...}}
// placeholder: either a bare variable name or a function call whose
// arguments may be integer literals, variable references or nested
// calls.

package resolve

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// node is an element of the placeholder AST.
type node interface{}

// varRef references a variable in the store.
type varRef struct {
	name string
}

// numLit is an integer literal argument.
type numLit struct {
	val int
}

// call is a function invocation, e.g. random(1, 10).
type call struct {
	name string
	args []node
}

func (v varRef) String() string { return v.name }
func (n numLit) String() string { return strconv.Itoa(n.val) }
func (c call) String() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = fmt.Sprint(a)
	}
	return c.name + "(" + strings.Join(parts, ", ") + ")"
}

// parseExpr parses the inner text of a placeholder.
func parseExpr(s string) (node, error) {
	p := &parser{input: s}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("trailing %q in placeholder %q", p.input[p.pos:], s)
	}
	return n, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

// expr := number | name | name '(' args ')'
func (p *parser) expr() (node, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == 0:
		return nil, fmt.Errorf("empty placeholder")
	case c == '-' || c >= '0' && c <= '9':
		return p.number()
	case isNameRune(rune(c)):
		name := p.name()
		p.skipSpace()
		if p.peek() != '(' {
			return varRef{name: name}, nil
		}
		p.pos++ // consume '('
		args, err := p.args()
		if err != nil {
			return nil, err
		}
		return call{name: name, args: args}, nil
	}
	return nil, fmt.Errorf("unexpected %q in placeholder %q", c, p.input)
}

// args := [ expr { ',' expr } ] ')'
func (p *parser) args() ([]node, error) {
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return nil, nil
	}
	var args []node
	for {
		a, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return args, nil
		default:
			return nil, fmt.Errorf("missing ) in placeholder %q", p.input)
		}
	}
}

func (p *parser) number() (node, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		return nil, fmt.Errorf("bad number in placeholder %q", p.input)
	}
	return numLit{val: n}, nil
}

func (p *parser) name() string {
	start := p.pos
	for p.pos < len(p.input) && isNameRune(rune(p.input[p.pos])) {
		p.pos++
	}
	return p.input[start:p.pos]
}

// isNameRune reports whether r may occur in a variable or function
// name. Dots and dashes are allowed because data-source columns use
// them.
func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) ||
		r == '_' || r == '.' || r == '-'
}
