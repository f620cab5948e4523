// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jsonpath evaluates the JSONPath subset used in scenario
// files: a leading $, dotted object keys, numeric indices and the [*]
// wildcard, e.g.
//     $.token
//     $.results[*].id
//     $.data.items[2].name
// A wildcard maps over the array elements and continues the path on
// each element; elements where the remaining path does not match are
// skipped. Matches are returned in document order.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// segment is one step of a parsed path.
type segment struct {
	key      string // object key; empty for index/wildcard segments
	index    int
	isIndex  bool
	wildcard bool
}

// Path is a parsed JSONPath expression.
type Path struct {
	expr     string
	segs     []segment
	wildcard bool
}

// Wildcard reports whether the path contains a [*] segment, i.e.
// whether evaluation yields a list of matches instead of a single one.
func (p *Path) Wildcard() bool { return p.wildcard }

// String returns the original expression.
func (p *Path) String() string { return p.expr }

// Parse parses expr. The expression must start with "$".
func Parse(expr string) (*Path, error) {
	if !strings.HasPrefix(expr, "$") {
		return nil, fmt.Errorf("jsonpath: expression %q does not start with $", expr)
	}
	p := &Path{expr: expr}
	s := expr[1:]
	for len(s) > 0 {
		switch s[0] {
		case '.':
			s = s[1:]
			i := strings.IndexAny(s, ".[")
			var key string
			if i == -1 {
				key, s = s, ""
			} else {
				key, s = s[:i], s[i:]
			}
			if key == "" {
				return nil, fmt.Errorf("jsonpath: empty key in %q", expr)
			}
			p.segs = append(p.segs, segment{key: key})
		case '[':
			end := strings.IndexByte(s, ']')
			if end == -1 {
				return nil, fmt.Errorf("jsonpath: missing ] in %q", expr)
			}
			inner := s[1:end]
			s = s[end+1:]
			if inner == "*" {
				p.segs = append(p.segs, segment{wildcard: true})
				p.wildcard = true
				break
			}
			n, err := strconv.Atoi(inner)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("jsonpath: bad index %q in %q", inner, expr)
			}
			p.segs = append(p.segs, segment{index: n, isIndex: true})
		default:
			return nil, fmt.Errorf("jsonpath: unexpected %q in %q", s[0], expr)
		}
	}
	return p, nil
}

// Eval evaluates p against the unmarshaled JSON document doc and
// returns all matches in document order. A non-wildcard path yields at
// most one match; zero matches is not an error here, the caller decides
// whether an empty result is fatal.
func (p *Path) Eval(doc interface{}) []interface{} {
	return eval(p.segs, doc)
}

func eval(segs []segment, node interface{}) []interface{} {
	if len(segs) == 0 {
		return []interface{}{node}
	}
	seg, rest := segs[0], segs[1:]

	switch {
	case seg.wildcard:
		arr, ok := node.([]interface{})
		if !ok {
			return nil
		}
		var out []interface{}
		for _, elem := range arr {
			out = append(out, eval(rest, elem)...)
		}
		return out
	case seg.isIndex:
		arr, ok := node.([]interface{})
		if !ok || seg.index >= len(arr) {
			return nil
		}
		return eval(rest, arr[seg.index])
	default:
		obj, ok := node.(map[string]interface{})
		if !ok {
			// Mirror numeric dotted access like $.bar.0 which the
			// legacy shorthand form produces for arrays.
			if arr, isArr := node.([]interface{}); isArr {
				if n, err := strconv.Atoi(seg.key); err == nil && n >= 0 && n < len(arr) {
					return eval(rest, arr[n])
				}
			}
			return nil
		}
		child, found := obj[seg.key]
		if !found {
			return nil
		}
		return eval(rest, child)
	}
}
