// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package extract computes values from executed HTTP responses and
// hands them to the variable store for correlation with later steps.
// Three strategies exist: JSONPath over the parsed body, regular
// expressions over the raw body, and left/right boundary search over
// the raw body.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vdobler/stride/internal/jsonpath"
	"github.com/vdobler/stride/response"
	"github.com/vdobler/stride/scenario"
	"github.com/vdobler/stride/scope"
)

// ErrNotFound is returned when an extraction matches nothing. The
// orchestrator leaves the variable unset in that case; it never aborts
// the step.
var ErrNotFound = errors.New("not found")

// Extractor computes a value from an executed response.
type Extractor interface {
	Extract(resp *response.Response) (scope.Value, error)
}

// FromSpec constructs the Extractor described by spec.
func FromSpec(spec scenario.ExtractSpec) (Extractor, error) {
	switch spec.Type {
	case "json_path":
		if spec.Expression == "" {
			return nil, fmt.Errorf("json_path extraction without expression")
		}
		path, err := jsonpath.Parse(spec.Expression)
		if err != nil {
			return nil, err
		}
		return &JSONPath{Expression: spec.Expression, path: path}, nil
	case "regex":
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, err
		}
		return &Regex{Pattern: spec.Pattern, re: re}, nil
	case "boundary":
		if spec.LeftBoundary == "" || spec.RightBoundary == "" {
			return nil, fmt.Errorf("boundary extraction needs left_boundary and right_boundary")
		}
		return &Boundary{Left: spec.LeftBoundary, Right: spec.RightBoundary}, nil
	}
	return nil, fmt.Errorf("no such extraction type %q", spec.Type)
}

// ----------------------------------------------------------------------------
// JSONPath

// JSONPath extracts an element of the JSON response body. A wildcard
// expression like $.results[*].id yields the ordered list of all
// matches (possibly empty); a non-wildcard expression yields the
// single matched value or ErrNotFound.
type JSONPath struct {
	Expression string

	path *jsonpath.Path
}

// Extract implements Extractor's Extract method.
func (e *JSONPath) Extract(resp *response.Response) (scope.Value, error) {
	if e.path == nil {
		p, err := jsonpath.Parse(e.Expression)
		if err != nil {
			return scope.Value{}, err
		}
		e.path = p
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(resp.BodyStr), &doc); err != nil {
		return scope.Value{}, fmt.Errorf("body is not JSON: %w", err)
	}
	matches := e.path.Eval(doc)
	if e.path.Wildcard() {
		elems := make([]scope.Value, len(matches))
		for i, m := range matches {
			elems[i] = scope.FromAny(m)
		}
		return scope.ListOf(elems...), nil
	}
	if len(matches) == 0 {
		return scope.Value{}, ErrNotFound
	}
	return scope.FromAny(matches[0]), nil
}

// ----------------------------------------------------------------------------
// Regex

// Regex extracts from the raw body text: the first capture group if
// the pattern has one, else the whole match.
type Regex struct {
	Pattern string

	re *regexp.Regexp
}

// Extract implements Extractor's Extract method.
func (e *Regex) Extract(resp *response.Response) (scope.Value, error) {
	if e.re == nil {
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return scope.Value{}, err
		}
		e.re = re
	}
	m := e.re.FindStringSubmatch(resp.BodyStr)
	if m == nil {
		return scope.Value{}, ErrNotFound
	}
	if len(m) > 1 {
		return scope.Str(m[1]), nil
	}
	return scope.Str(m[0]), nil
}

// ----------------------------------------------------------------------------
// Boundary

// Boundary extracts the substring between the first occurrence of Left
// and the first occurrence of Right after it. Surrounding whitespace
// is trimmed.
type Boundary struct {
	Left, Right string
}

// Extract implements Extractor's Extract method.
func (e *Boundary) Extract(resp *response.Response) (scope.Value, error) {
	body := resp.BodyStr
	start := strings.Index(body, e.Left)
	if start == -1 {
		return scope.Value{}, ErrNotFound
	}
	start += len(e.Left)
	end := strings.Index(body[start:], e.Right)
	if end == -1 {
		return scope.Value{}, ErrNotFound
	}
	return scope.Str(strings.TrimSpace(body[start : start+end])), nil
}
