// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package extract

import (
	"testing"

	"github.com/vdobler/stride/response"
	"github.com/vdobler/stride/scenario"
	"github.com/vdobler/stride/scope"
)

var listBody = `{
  "info": {"count": 826},
  "results": [
    {"id": 1, "name": "Rick Sanchez"},
    {"id": 2, "name": "Morty Smith"},
    {"id": 3, "name": "Summer Smith"}
  ]
}`

func TestJSONPathScalar(t *testing.T) {
	resp := &response.Response{BodyStr: listBody}

	ex := &JSONPath{Expression: "$.info.count"}
	val, err := ex.Extract(resp)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if val.String() != "826" {
		t.Errorf("got %q, want 826", val.String())
	}

	ex = &JSONPath{Expression: "$.results[1].name"}
	val, err = ex.Extract(resp)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if val.String() != "Morty Smith" {
		t.Errorf("got %q", val.String())
	}

	ex = &JSONPath{Expression: "$.nosuch"}
	if _, err = ex.Extract(resp); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestJSONPathWildcard(t *testing.T) {
	resp := &response.Response{BodyStr: listBody}

	ex := &JSONPath{Expression: "$.results[*].id"}
	val, err := ex.Extract(resp)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if val.Kind() != scope.List {
		t.Fatalf("got kind %s, want list", val.Kind())
	}
	elems, _ := val.AsList()
	if len(elems) != 3 {
		t.Fatalf("got %d elements", len(elems))
	}
	// Document order is preserved.
	for i, want := range []string{"1", "2", "3"} {
		if got := elems[i].String(); got != want {
			t.Errorf("element %d: got %q, want %q", i, got, want)
		}
	}

	// A wildcard matching nothing yields an empty list, not an error.
	ex = &JSONPath{Expression: "$.results[*].missing"}
	val, err = ex.Extract(resp)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if elems, _ := val.AsList(); len(elems) != 0 {
		t.Errorf("got %d elements, want 0", len(elems))
	}
}

func TestJSONPathBadBody(t *testing.T) {
	ex := &JSONPath{Expression: "$.x"}
	if _, err := ex.Extract(&response.Response{BodyStr: "<html>"}); err == nil {
		t.Errorf("missing error")
	}
}

func TestRegex(t *testing.T) {
	resp := &response.Response{BodyStr: `token=DEAD-BEEF-0007; expires=never`}

	ex := &Regex{Pattern: `token=([A-Z0-9-]+)`}
	val, err := ex.Extract(resp)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if val.String() != "DEAD-BEEF-0007" {
		t.Errorf("got %q", val.String())
	}

	// Without a capture group the whole match is extracted.
	ex = &Regex{Pattern: `expires=\w+`}
	val, err = ex.Extract(resp)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if val.String() != "expires=never" {
		t.Errorf("got %q", val.String())
	}

	ex = &Regex{Pattern: `nomatch-[0-9]+`}
	if _, err = ex.Extract(resp); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestBoundary(t *testing.T) {
	resp := &response.Response{BodyStr: `<session> abc-123 </session>`}

	ex := &Boundary{Left: "<session>", Right: "</session>"}
	val, err := ex.Extract(resp)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if val.String() != "abc-123" {
		t.Errorf("got %q, want abc-123", val.String())
	}

	ex = &Boundary{Left: "<missing>", Right: "</missing>"}
	if _, err = ex.Extract(resp); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	ex = &Boundary{Left: "<session>", Right: "<never>"}
	if _, err = ex.Extract(resp); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestFromSpec(t *testing.T) {
	for i, tc := range []struct {
		spec scenario.ExtractSpec
		ok   bool
	}{
		{scenario.ExtractSpec{Type: "json_path", Expression: "$.a"}, true},
		{scenario.ExtractSpec{Type: "regex", Pattern: `\d+`}, true},
		{scenario.ExtractSpec{Type: "boundary", LeftBoundary: "<", RightBoundary: ">"}, true},
		{scenario.ExtractSpec{Type: "json_path"}, false},
		{scenario.ExtractSpec{Type: "regex", Pattern: `([`}, false},
		{scenario.ExtractSpec{Type: "boundary", LeftBoundary: "<"}, false},
		{scenario.ExtractSpec{Type: "css"}, false},
	} {
		_, err := FromSpec(tc.spec)
		if (err == nil) != tc.ok {
			t.Errorf("%d. %s: err == %v", i, tc.spec.Type, err)
		}
	}
}
