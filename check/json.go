// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// json.go contains the assertions over a JSON response body.

package check

import (
	"encoding/json"
	"fmt"

	jee "github.com/nytlabs/gojee"

	"github.com/vdobler/stride/internal/jsonpath"
	"github.com/vdobler/stride/response"
	"github.com/vdobler/stride/scenario"
	"github.com/vdobler/stride/scope"
)

// ----------------------------------------------------------------------------
// JSONPath

// JSONPath checks an element of the JSON body selected by a JSONPath
// expression against comparator fields.
//
// The meaning of Min and Max depends on the shape of the expression:
// a wildcard expression like $.results[*] selects a list of matches
// and Min/Max bound the match count; a scalar expression like
// $.info.count selects a single value and Min/Max bound its numeric
// value. Both meanings occur in observed scenario files, so the
// switch is deliberate and part of the contract.
type JSONPath struct {
	// Expression selects the element(s) to check.
	Expression string

	// Expected requires type-coerced equality with the matched value.
	Expected interface{}
	// HasExpected marks Expected as present (it may be null).
	HasExpected bool

	// Min and Max bound the match count (wildcard expressions) or
	// the numeric value (scalar expressions).
	Min, Max *float64

	// In requires the matched scalar to be a member of the set.
	In []interface{}

	// NotEmpty requires a non-null match; strings must be non-empty,
	// wildcard matches must be a non-empty list.
	NotEmpty bool

	path *jsonpath.Path
}

func newJSONPath(spec scenario.AssertionSpec) (*JSONPath, error) {
	if spec.Expression == "" {
		return nil, fmt.Errorf("json_path assertion without expression")
	}
	path, err := jsonpath.Parse(spec.Expression)
	if err != nil {
		return nil, err
	}
	return &JSONPath{
		Expression:  spec.Expression,
		Expected:    spec.Expected,
		HasExpected: spec.HasExpected,
		Min:         spec.Min,
		Max:         spec.Max,
		In:          spec.In,
		NotEmpty:    spec.NotEmpty,
		path:        path,
	}, nil
}

// Check implements Assertion's Check method.
func (c *JSONPath) Check(resp *response.Response) error {
	if c.path == nil {
		p, err := jsonpath.Parse(c.Expression)
		if err != nil {
			return err
		}
		c.path = p
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(resp.BodyStr), &doc); err != nil {
		return fmt.Errorf("body is not JSON: %s", err)
	}
	matches := c.path.Eval(doc)

	if c.path.Wildcard() {
		return c.checkList(matches)
	}
	if len(matches) == 0 {
		return fmt.Errorf("%s: no match", c.Expression)
	}
	return c.checkScalar(scope.FromAny(matches[0]))
}

// checkList applies the comparators in their count-of-matches meaning.
func (c *JSONPath) checkList(matches []interface{}) error {
	n := float64(len(matches))
	if c.Min != nil && n < *c.Min {
		return fmt.Errorf("%s: %d matches, below minimum %g", c.Expression, len(matches), *c.Min)
	}
	if c.Max != nil && n > *c.Max {
		return fmt.Errorf("%s: %d matches, exceeds maximum %g", c.Expression, len(matches), *c.Max)
	}
	if c.NotEmpty && len(matches) == 0 {
		return fmt.Errorf("%s: no matches", c.Expression)
	}
	if c.HasExpected {
		got := scope.FromAny(matches)
		if !equalCoerced(got, c.Expected) {
			return fmt.Errorf("%s: got %s, want %v", c.Expression, got.JSON(), c.Expected)
		}
	}
	if c.In != nil {
		if len(matches) != 1 {
			return fmt.Errorf("%s: in-comparator needs a single match, got %d", c.Expression, len(matches))
		}
		return c.checkIn(scope.FromAny(matches[0]))
	}
	return nil
}

// checkScalar applies the comparators to the single matched value.
func (c *JSONPath) checkScalar(got scope.Value) error {
	if c.HasExpected && !equalCoerced(got, c.Expected) {
		return fmt.Errorf("%s: got %q, want %v", c.Expression, got.String(), c.Expected)
	}
	if c.Min != nil || c.Max != nil {
		f, ok := got.AsFloat()
		if !ok {
			return fmt.Errorf("%s: value %q is not numeric", c.Expression, got.String())
		}
		if c.Min != nil && f < *c.Min {
			return fmt.Errorf("%s: value %g below minimum %g", c.Expression, f, *c.Min)
		}
		if c.Max != nil && f > *c.Max {
			return fmt.Errorf("%s: value %g exceeds maximum %g", c.Expression, f, *c.Max)
		}
	}
	if c.In != nil {
		if err := c.checkIn(got); err != nil {
			return err
		}
	}
	if c.NotEmpty {
		if got.IsUndefined() {
			return fmt.Errorf("%s: value is null", c.Expression)
		}
		if got.Kind() == scope.String && got.String() == "" {
			return fmt.Errorf("%s: value is empty", c.Expression)
		}
	}
	return nil
}

func (c *JSONPath) checkIn(got scope.Value) error {
	for _, candidate := range c.In {
		if equalCoerced(got, candidate) {
			return nil
		}
	}
	return fmt.Errorf("%s: value %q not in %v", c.Expression, got.String(), c.In)
}

// ----------------------------------------------------------------------------
// JSONExpr

// JSONExpr checks the JSON body via a boolean gojee expression.
// See github.com/nytlabs/gojee for the expression language.
//
// Consider this JSON:
//     { "foo": 5, "bar": [ 1, 2, 3 ] }
// The following expressions have these truth values:
//     .foo == 5                    true
//     $len(.bar) > 2               true as $len(.bar)==3
//     (.foo == 9) || (.bar[0]<7)   true as .bar[0]==1
type JSONExpr struct {
	// Expression is a boolean gojee expression which must evaluate
	// to true for the assertion to pass.
	Expression string

	tt *jee.TokenTree
}

func newJSONExpr(expression string) (*JSONExpr, error) {
	if expression == "" {
		return nil, fmt.Errorf("json_expr assertion without expression")
	}
	tokens, err := jee.Lexer(expression)
	if err != nil {
		return nil, err
	}
	tt, err := jee.Parser(tokens)
	if err != nil {
		return nil, err
	}
	return &JSONExpr{Expression: expression, tt: tt}, nil
}

// Check implements Assertion's Check method.
func (c *JSONExpr) Check(resp *response.Response) error {
	if c.tt == nil {
		n, err := newJSONExpr(c.Expression)
		if err != nil {
			return err
		}
		c.tt = n.tt
	}
	var bmsg jee.BMsg
	if err := json.Unmarshal([]byte(resp.BodyStr), &bmsg); err != nil {
		return fmt.Errorf("body is not JSON: %s", err)
	}
	result, err := jee.Eval(c.tt, bmsg)
	if err != nil {
		return err
	}
	b, ok := result.(bool)
	if !ok {
		return fmt.Errorf("expression %q yields %T, not bool", c.Expression, result)
	}
	if !b {
		return fmt.Errorf("expression %q is false", c.Expression)
	}
	return nil
}
