// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	hjson "github.com/hjson/hjson-go/v4"
)

// Default pacing bounds used when a scenario does not set min_wait or
// max_wait (milliseconds).
const (
	DefaultMinWait = 1000 * time.Millisecond
	DefaultMaxWait = 5000 * time.Millisecond
)

// ParseFile reads and parses the scenario file at path.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, SchemaError{File: path, Err: err}
	}
	sc, err := Parse(data)
	if err != nil {
		var se SchemaError
		if errors.As(err, &se) {
			se.File = path
			return nil, se
		}
		return nil, SchemaError{File: path, Err: err}
	}
	return sc, nil
}

// Parse parses a scenario document. Parsing is lenient in syntax
// (comments, trailing commas) but strict in shape: a missing name, an
// empty step list or an unrecognized step kind is a SchemaError.
// Parsing is idempotent and performs no file or network I/O.
func Parse(data []byte) (*Scenario, error) {
	// Lenient parse first, then a JSON round-trip to get plain
	// map[string]interface{}/[]interface{} values to normalize from.
	var lenient interface{}
	if err := hjson.Unmarshal(data, &lenient); err != nil {
		return nil, SchemaError{Err: err}
	}
	plain, err := json.Marshal(lenient)
	if err != nil {
		return nil, SchemaError{Err: err}
	}
	var doc interface{}
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, SchemaError{Err: err}
	}

	top, ok := doc.(map[string]interface{})
	if !ok {
		return nil, schemaErrf("", "scenario document is not an object")
	}

	sc := &Scenario{
		Name:        str(top["name"]),
		Description: str(top["description"]),
		BaseURL:     str(top["base_url"]),
		MinWait:     DefaultMinWait,
		MaxWait:     DefaultMaxWait,
	}
	if sc.Name == "" {
		return nil, schemaErrf("name", "missing or empty")
	}
	if ms, ok := num(top["min_wait"]); ok {
		sc.MinWait = time.Duration(ms * float64(time.Millisecond))
	}
	if ms, ok := num(top["max_wait"]); ok {
		sc.MaxWait = time.Duration(ms * float64(time.Millisecond))
	}

	rawSteps, ok := top["steps"].([]interface{})
	if !ok || len(rawSteps) == 0 {
		return nil, schemaErrf("steps", "missing or empty")
	}
	for i, rs := range rawSteps {
		step, err := parseStep(i, rs)
		if err != nil {
			return nil, err
		}
		sc.Steps = append(sc.Steps, step)
	}

	dss, err := parseDataSources(top)
	if err != nil {
		return nil, err
	}
	sc.DataSources = dss

	return sc, nil
}

func parseStep(i int, raw interface{}) (Step, error) {
	field := func(name string) string {
		return fmt.Sprintf("steps[%d].%s", i, name)
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Step{}, schemaErrf(fmt.Sprintf("steps[%d]", i), "step is not an object")
	}

	step := Step{
		ID:   idString(m["id"]),
		Name: str(m["name"]),
	}
	if step.ID == "" {
		step.ID = strconv.Itoa(i + 1)
	}

	kind := str(m["kind"])
	if kind == "" {
		kind = str(m["type"])
	}
	switch StepKind(kind) {
	case APICall:
		step.Kind = APICall
	case Wait:
		step.Kind = Wait
	default:
		return Step{}, schemaErrf(field("kind"), "unrecognized step kind %q", kind)
	}

	// The legacy shape nests the request spec under "config"; the
	// flattened shape keeps it at the step's top level. Config wins
	// where both are present.
	spec := m
	if cfg, ok := m["config"].(map[string]interface{}); ok {
		spec = cfg
		if step.Name == "" {
			step.Name = str(cfg["name"])
		}
	}

	if step.Kind == Wait {
		switch w := pick(spec, "wait", "seconds").(type) {
		case float64:
			step.WaitSeconds = w
		case string:
			step.WaitExpr = w
		case nil:
			return Step{}, schemaErrf(field("wait"), "wait step without duration")
		default:
			return Step{}, schemaErrf(field("wait"), "bad duration %v", w)
		}
		return step, nil
	}

	step.Method = str(spec["method"])
	if step.Method == "" {
		step.Method = "GET"
	}
	step.URL = str(spec["url"])
	if step.URL == "" {
		return Step{}, schemaErrf(field("url"), "missing or empty")
	}
	step.Header = stringMap(spec["headers"])
	step.Params = stringMap(spec["params"])
	step.Body = spec["body"]

	ex, err := parseExtract(field("extract"), spec["extract"])
	if err != nil {
		return Step{}, err
	}
	step.Extract = ex

	as, err := parseAssertions(field("assertions"), spec["assertions"])
	if err != nil {
		return Step{}, err
	}
	if len(as) == 0 {
		// A bare api_call still checks for success.
		expected := interface{}(float64(200))
		as = []AssertionSpec{{
			Type:        "status_code",
			Description: "status code is 200",
			Expected:    expected,
			HasExpected: true,
		}}
	}
	step.Assertions = as

	return step, nil
}

func parseExtract(field string, raw interface{}) (map[string]ExtractSpec, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, schemaErrf(field, "extract is not an object")
	}
	out := make(map[string]ExtractSpec, len(m))
	for name, rv := range m {
		switch v := rv.(type) {
		case string:
			// Legacy shorthand: {name: "$.path"}.
			out[name] = ExtractSpec{Type: "json_path", Expression: v}
		case map[string]interface{}:
			spec := ExtractSpec{
				Type:          str(v["type"]),
				Expression:    str(v["expression"]),
				Pattern:       str(v["pattern"]),
				LeftBoundary:  str(v["left_boundary"]),
				RightBoundary: str(v["right_boundary"]),
			}
			if spec.Type == "" {
				spec.Type = "json_path"
			}
			switch spec.Type {
			case "json_path", "regex", "boundary":
			default:
				return nil, schemaErrf(field+"."+name, "unrecognized extraction type %q", spec.Type)
			}
			out[name] = spec
		default:
			return nil, schemaErrf(field+"."+name, "bad extraction rule %v", rv)
		}
	}
	return out, nil
}

func parseAssertions(field string, raw interface{}) ([]AssertionSpec, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, schemaErrf(field, "assertions is not a list")
	}
	out := make([]AssertionSpec, 0, len(list))
	for i, ra := range list {
		m, ok := ra.(map[string]interface{})
		if !ok {
			return nil, schemaErrf(fmt.Sprintf("%s[%d]", field, i), "assertion is not an object")
		}
		spec := AssertionSpec{
			Type:        str(m["type"]),
			Description: str(m["description"]),
			Expression:  str(m["expression"]),
			Text:        str(m["text"]),
			Pattern:     str(m["pattern"]),
		}
		if spec.Type == "" {
			return nil, schemaErrf(fmt.Sprintf("%s[%d].type", field, i), "missing")
		}
		// "value" is the legacy spelling of "expected".
		if v, ok := m["expected"]; ok {
			spec.Expected, spec.HasExpected = v, true
		} else if v, ok := m["value"]; ok {
			spec.Expected, spec.HasExpected = v, true
		}
		if f, ok := num(m["min"]); ok {
			spec.Min = &f
		}
		if f, ok := num(m["max"]); ok {
			spec.Max = &f
		}
		if in, ok := m["in"].([]interface{}); ok {
			spec.In = in
		}
		if ne, ok := m["not_empty"].(bool); ok {
			spec.NotEmpty = ne
		}
		out = append(out, spec)
	}
	return out, nil
}

func parseDataSources(top map[string]interface{}) ([]DataSourceSpec, error) {
	raw := top["data_sources"]
	if raw == nil {
		// Legacy shape: parameters.data_sources.
		if params, ok := top["parameters"].(map[string]interface{}); ok {
			raw = params["data_sources"]
		}
	}
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, schemaErrf("data_sources", "not a list")
	}
	out := make([]DataSourceSpec, 0, len(list))
	for i, rd := range list {
		field := fmt.Sprintf("data_sources[%d]", i)
		m, ok := rd.(map[string]interface{})
		if !ok {
			return nil, schemaErrf(field, "data source is not an object")
		}
		spec := DataSourceSpec{
			Name: str(m["name"]),
			Type: str(m["type"]),
			File: str(m["file"]),
			Path: str(m["path"]),
		}
		if spec.Name == "" {
			return nil, schemaErrf(field+".name", "missing or empty")
		}
		if spec.File == "" {
			return nil, schemaErrf(field+".file", "missing or empty")
		}
		switch spec.Type {
		case "csv":
			cols, _ := m["columns"].([]interface{})
			for _, c := range cols {
				spec.Columns = append(spec.Columns, str(c))
			}
			if len(spec.Columns) == 0 {
				return nil, schemaErrf(field+".columns", "csv source without column list")
			}
		case "json":
			if spec.Path == "" {
				spec.Path = "$"
			}
		default:
			return nil, schemaErrf(field+".type", "unrecognized data source type %q", spec.Type)
		}
		out = append(out, spec)
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Small helpers on the raw document.

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// idString normalizes a step id which may be a string or an integer.
func idString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func stringMap(v interface{}) map[string]string {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, rv := range m {
		switch x := rv.(type) {
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(x)
		default:
			raw, err := json.Marshal(x)
			if err == nil {
				out[k] = string(raw)
			}
		}
	}
	return out
}

// pick returns the first present key of m.
func pick(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}
