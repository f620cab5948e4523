// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package check evaluates assertions against executed HTTP responses.
// Evaluation is total: a malformed assertion or a missing response
// yields a failing Verdict with a reason, never a panic or an error
// return, so a scenario with failing assertions still completes and
// produces a full result set.
package check

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vdobler/stride/response"
	"github.com/vdobler/stride/scenario"
	"github.com/vdobler/stride/scope"
)

// Verdict is the outcome of one assertion.
type Verdict struct {
	// Pass reports whether the assertion held.
	Pass bool

	// Reason is a human-readable explanation of a failure, empty on
	// pass.
	Reason string

	// Description is carried over from the assertion spec for
	// reporting.
	Description string
}

// Assertion is a single check performed on a response. A nil return
// means pass; the error text is the failure reason.
type Assertion interface {
	Check(resp *response.Response) error
}

// Evaluate builds the assertion described by spec and applies it to
// resp. It never fails: problems become failing verdicts.
func Evaluate(spec scenario.AssertionSpec, resp *response.Response) Verdict {
	v := Verdict{Description: spec.Description}
	a, err := FromSpec(spec)
	if err != nil {
		v.Reason = fmt.Sprintf("malformed assertion: %s", err)
		return v
	}
	if resp == nil {
		v.Reason = "no response"
		return v
	}
	if err := a.Check(resp); err != nil {
		v.Reason = err.Error()
		return v
	}
	v.Pass = true
	return v
}

// FromSpec constructs the Assertion described by spec.
func FromSpec(spec scenario.AssertionSpec) (Assertion, error) {
	switch spec.Type {
	case "status_code":
		if !spec.HasExpected {
			return nil, fmt.Errorf("status_code assertion without expected value")
		}
		want, ok := toInt(spec.Expected)
		if !ok {
			return nil, fmt.Errorf("bad expected status code %v", spec.Expected)
		}
		return StatusCode{Expect: want}, nil
	case "response_time_ms":
		if spec.Min == nil && spec.Max == nil {
			return nil, fmt.Errorf("response_time_ms assertion without min or max")
		}
		return ResponseTime{Min: spec.Min, Max: spec.Max}, nil
	case "json_path":
		return newJSONPath(spec)
	case "body_contains_text":
		if spec.Text == "" {
			return nil, fmt.Errorf("body_contains_text assertion without text")
		}
		return BodyContains{Text: spec.Text}, nil
	case "regex":
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, err
		}
		return &BodyRegexp{Pattern: spec.Pattern, re: re}, nil
	case "json_expr":
		return newJSONExpr(spec.Expression)
	}
	return nil, fmt.Errorf("no such assertion type %q", spec.Type)
}

// ----------------------------------------------------------------------------
// StatusCode

// StatusCode checks the HTTP status code.
type StatusCode struct {
	Expect int
}

// Check implements Assertion's Check method.
func (c StatusCode) Check(resp *response.Response) error {
	if resp.StatusCode != c.Expect {
		return fmt.Errorf("got %d, want %d", resp.StatusCode, c.Expect)
	}
	return nil
}

// ----------------------------------------------------------------------------
// ResponseTime

// ResponseTime bounds the response duration in milliseconds.
type ResponseTime struct {
	Min, Max *float64
}

// Check implements Assertion's Check method.
func (c ResponseTime) Check(resp *response.Response) error {
	ms := resp.ElapsedMS()
	if c.Max != nil && ms > *c.Max {
		return fmt.Errorf("response time %.0fms exceeds %.0fms", ms, *c.Max)
	}
	if c.Min != nil && ms < *c.Min {
		return fmt.Errorf("response time %.0fms below %.0fms", ms, *c.Min)
	}
	return nil
}

// ----------------------------------------------------------------------------
// BodyContains

// BodyContains checks for a substring in the raw body.
type BodyContains struct {
	Text string
}

// Check implements Assertion's Check method.
func (c BodyContains) Check(resp *response.Response) error {
	if !strings.Contains(resp.BodyStr, c.Text) {
		return fmt.Errorf("body does not contain %q", c.Text)
	}
	return nil
}

// ----------------------------------------------------------------------------
// BodyRegexp

// BodyRegexp checks that a pattern matches somewhere in the raw body.
type BodyRegexp struct {
	Pattern string

	re *regexp.Regexp
}

// Check implements Assertion's Check method.
func (c *BodyRegexp) Check(resp *response.Response) error {
	if c.re == nil {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return err
		}
		c.re = re
	}
	if !c.re.MatchString(resp.BodyStr) {
		return fmt.Errorf("body does not match %q", c.Pattern)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Coercion helpers

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case int:
		return x, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}

// equalCoerced compares an extracted value with an expected raw JSON
// value, numerically when both sides are numbers and by string form
// otherwise.
func equalCoerced(got scope.Value, want interface{}) bool {
	w := scope.FromAny(want)
	gf, gok := got.AsFloat()
	wf, wok := w.AsFloat()
	if gok && wok {
		return gf == wf
	}
	return got.String() == w.String()
}
