// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scenario contains the in-memory model of a load-test
// scenario and the parser turning scenario documents into it.
//
// Scenario files are JSON; because they are written by hand they are
// parsed leniently (comments and trailing commas are fine). Two step
// shapes occur in the wild and both are accepted: the flattened shape
// with method/url/headers at the step's top level, and the legacy
// shape nesting them under "config". Both normalize to Step.
package scenario

import (
	"fmt"
	"time"
)

// Scenario is a declarative description of an ordered sequence of
// HTTP and wait steps. It is immutable after Parse.
type Scenario struct {
	// Name of the scenario. Required.
	Name string

	// Description of the scenario's intention.
	Description string

	// BaseURL is prepended to relative step URLs.
	BaseURL string

	// MinWait and MaxWait are the default pacing bounds between
	// scenario iterations. The engine itself does not pace; these are
	// carried for the load-generation collaborator.
	MinWait, MaxWait time.Duration

	// Steps in execution order.
	Steps []Step

	// DataSources declares the external row-sets for per-user
	// parameterization.
	DataSources []DataSourceSpec
}

// StepKind discriminates the step types.
type StepKind string

const (
	APICall StepKind = "api_call"
	Wait    StepKind = "wait"
)

// Step is one entry of a scenario.
type Step struct {
	// ID of the step. Scenario files may use strings or integers;
	// integers are normalized to their decimal form.
	ID string

	// Name of the step, carried into results for reporting.
	Name string

	// Kind is api_call or wait.
	Kind StepKind

	// The request specification of an api_call step. URL, header
	// values, parameter values and string leaves of Body are
	// templates resolved before dispatch.
	Method string
	URL    string
	Header map[string]string
	Params map[string]string
	Body   interface{}

	// Extract maps variable names to extraction rules applied to the
	// step's response.
	Extract map[string]ExtractSpec

	// Assertions to evaluate against the step's response, in order.
	Assertions []AssertionSpec

	// WaitSeconds is the duration of a wait step in (fractional)
	// seconds. WaitExpr, if set, is a template yielding the duration
	// and takes precedence.
	WaitSeconds float64
	WaitExpr    string
}

// ExtractSpec describes how to compute a variable from a response.
type ExtractSpec struct {
	// Type is json_path, regex or boundary.
	Type string

	// Expression is the JSONPath for json_path extraction.
	Expression string

	// Pattern is the regular expression for regex extraction. The
	// first capture group is used if present, else the whole match.
	Pattern string

	// LeftBoundary and RightBoundary delimit the substring for
	// boundary extraction.
	LeftBoundary  string
	RightBoundary string
}

// AssertionSpec describes one pass/fail check against a response.
// Which comparator fields apply depends on Type; see package check.
type AssertionSpec struct {
	// Type is status_code, response_time_ms, json_path,
	// body_contains_text, regex or json_expr.
	Type string

	// Description is carried through to the verdict for reporting.
	Description string

	// Expression is the JSONPath (json_path) or the boolean gojee
	// expression (json_expr).
	Expression string

	// Expected requires exact (type-coerced) equality.
	Expected interface{}
	// HasExpected distinguishes "expected: null" from an absent field.
	HasExpected bool

	// Min and Max bound a numeric value, a match count or the
	// response time in milliseconds.
	Min, Max *float64

	// In requires membership of the matched value in the given set.
	In []interface{}

	// NotEmpty requires the matched value to be non-null and, for
	// strings, non-empty.
	NotEmpty bool

	// Text is the required substring for body_contains_text.
	Text string

	// Pattern is the regular expression for regex assertions.
	Pattern string
}

// DataSourceSpec names an external CSV or JSON side-file.
type DataSourceSpec struct {
	// Name of the row-set.
	Name string

	// Type is csv or json.
	Type string

	// File is the path of the side-file, relative to the scenario
	// file's location.
	File string

	// Columns is the authoritative column list for csv sources.
	Columns []string

	// Path is the JSONPath selecting the row array for json sources,
	// e.g. "$.products[*]".
	Path string
}

// SchemaError reports a malformed scenario document. It is fatal: a
// scenario failing to parse is never executed.
type SchemaError struct {
	File  string // optional file name
	Field string // offending field, e.g. "steps[2].kind"
	Err   error
}

func (e SchemaError) Error() string {
	s := ""
	if e.File != "" {
		s = e.File + ": "
	}
	if e.Field != "" {
		s += e.Field + ": "
	}
	return s + e.Err.Error()
}

func (e SchemaError) Unwrap() error { return e.Err }

func schemaErrf(field, format string, a ...interface{}) SchemaError {
	return SchemaError{Field: field, Err: fmt.Errorf(format, a...)}
}
