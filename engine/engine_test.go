// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vdobler/stride/response"
	"github.com/vdobler/stride/scenario"
	"github.com/vdobler/stride/scope"
)

// stubDispatcher answers requests from a URL-keyed table and records
// every dispatched request in order.
type stubDispatcher struct {
	responses map[string]*response.Response
	errs      map[string]error
	requests  []*Request
}

func (d *stubDispatcher) Dispatch(req *Request) (*response.Response, error) {
	d.requests = append(d.requests, req)
	if err, ok := d.errs[req.URL]; ok {
		return nil, err
	}
	if resp, ok := d.responses[req.URL]; ok {
		return resp, nil
	}
	return &response.Response{StatusCode: 404, BodyStr: `{}`}, nil
}

// fakeSleeper records wait durations without sleeping.
type fakeSleeper struct {
	slept []time.Duration
}

func (s *fakeSleeper) Sleep(d time.Duration) { s.slept = append(s.slept, d) }

func ok(body string) *response.Response {
	return &response.Response{
		StatusCode: 200,
		BodyStr:    body,
		Duration:   5 * time.Millisecond,
	}
}

func mustParse(t *testing.T, doc string) *scenario.Scenario {
	t.Helper()
	sc, err := scenario.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	return sc
}

var correlationScenario = `{
  "name": "Browse items",
  "base_url": "https://api.example.org",
  "steps": [
    {
      "id": 1,
      "name": "List",
      "kind": "api_call",
      "url": "/items",
      "extract": {
        "ids": {"type": "json_path", "expression": "$.results[*].id"}
      },
      "assertions": [
        {"type": "status_code", "expected": 200},
        {"type": "json_path", "expression": "$.results[*]", "min": 1}
      ]
    },
    {
      "id": 2,
      "name": "Detail",
      "kind": "api_call",
      "url": "/item/{{random_from_array(ids)}}",
      "assertions": [
        {"type": "json_path", "expression": "$.id", "not_empty": true}
      ]
    }
  ]
}`

func TestRunCorrelation(t *testing.T) {
	sc := mustParse(t, correlationScenario)
	d := &stubDispatcher{
		responses: map[string]*response.Response{
			"https://api.example.org/items": ok(
				`{"results": [{"id": 7}, {"id": 8}, {"id": 9}]}`),
			"https://api.example.org/item/7": ok(`{"id": 7}`),
			"https://api.example.org/item/8": ok(`{"id": 8}`),
			"https://api.example.org/item/9": ok(`{"id": 9}`),
		},
	}
	e, err := New(sc, "", d)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if result.Status != Pass {
		t.Fatalf("Status == %s\n%+v", result.Status, result.Steps)
	}
	if result.ContextID == "" || result.Scenario != "Browse items" {
		t.Errorf("result = %q %q", result.ContextID, result.Scenario)
	}

	if len(d.requests) != 2 {
		t.Fatalf("dispatched %d requests", len(d.requests))
	}
	// The detail URL is built from a value extracted in step 1.
	detail := d.requests[1].URL
	if detail != "https://api.example.org/item/7" &&
		detail != "https://api.example.org/item/8" &&
		detail != "https://api.example.org/item/9" {
		t.Errorf("detail URL %q not built from extracted ids", detail)
	}

	s1 := result.Steps[0]
	if s1.Name != "List" || s1.Status != Pass || len(s1.Assertions) != 2 {
		t.Errorf("step 1 = %+v", s1)
	}
	exIDs, ok := s1.Extractions["ids"]
	if !ok || exIDs.Err != nil {
		t.Fatalf("extractions = %+v", s1.Extractions)
	}
	if elems, _ := exIDs.Value.AsList(); len(elems) != 3 {
		t.Errorf("ids = %v", exIDs.Value)
	}
}

func TestRunAssertionFailure(t *testing.T) {
	sc := mustParse(t, `{
      "name": "x",
      "steps": [{
        "id": 1, "kind": "api_call", "url": "https://h/a",
        "assertions": [{"type": "status_code", "expected": 200}]
      }]
    }`)
	d := &stubDispatcher{responses: map[string]*response.Response{
		"https://h/a": {StatusCode: 500, BodyStr: "boom"},
	}}
	e, err := New(sc, "", d)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if result.Status != Fail {
		t.Errorf("Status == %s", result.Status)
	}
	v := result.Steps[0].Assertions[0]
	if v.Pass || !strings.Contains(v.Reason, "500") {
		t.Errorf("verdict = %+v", v)
	}
}

func TestRunDispatchError(t *testing.T) {
	sc := mustParse(t, `{
      "name": "x",
      "base_url": "https://h",
      "steps": [
        {"id": 1, "kind": "api_call", "url": "/a"},
        {"id": 2, "kind": "api_call", "url": "/b",
         "assertions": [{"type": "status_code", "expected": 200}]},
        {"id": 3, "kind": "api_call", "url": "/c"}
      ]
    }`)
	d := &stubDispatcher{
		responses: map[string]*response.Response{
			"https://h/a": ok(`{}`),
			"https://h/c": ok(`{}`),
		},
		errs: map[string]error{
			"https://h/b": fmt.Errorf("connection refused"),
		},
	}
	e, err := New(sc, "", d)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	// A failing dispatch marks its step but the iteration continues.
	if result.Status != Error {
		t.Errorf("Status == %s", result.Status)
	}
	if got := result.Steps[0].Status; got != Pass {
		t.Errorf("step 1 Status == %s", got)
	}
	s2 := result.Steps[1]
	if s2.Status != Error || s2.Error == nil || s2.Response != nil {
		t.Errorf("step 2 = %+v", s2)
	}
	// Its assertions report failure, not silence.
	if len(s2.Assertions) != 1 || s2.Assertions[0].Pass {
		t.Errorf("step 2 assertions = %+v", s2.Assertions)
	}
	if got := result.Steps[2].Status; got != Pass {
		t.Errorf("step 3 Status == %s", got)
	}
	if len(d.requests) != 3 {
		t.Errorf("dispatched %d requests", len(d.requests))
	}
}

func TestRunWaitStep(t *testing.T) {
	sc := mustParse(t, `{
      "name": "x",
      "steps": [
        {"id": 1, "kind": "wait", "wait": 0.25},
        {"id": 2, "kind": "wait", "wait": "{{pause}}"}
      ]
    }`)
	d := &stubDispatcher{}
	e, err := New(sc, "", d)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	sleeper := &fakeSleeper{}
	e.Sleeper = sleeper

	c := e.NewContext()
	c.Store.Set("pause", scope.Num(1.5))
	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if result.Status != Pass {
		t.Fatalf("Status == %s", result.Status)
	}
	want := []time.Duration{250 * time.Millisecond, 1500 * time.Millisecond}
	if len(sleeper.slept) != 2 ||
		sleeper.slept[0] != want[0] || sleeper.slept[1] != want[1] {
		t.Errorf("slept %v, want %v", sleeper.slept, want)
	}
	if len(d.requests) != 0 {
		t.Errorf("wait steps dispatched %d requests", len(d.requests))
	}
}

func TestRunCancellation(t *testing.T) {
	sc := mustParse(t, `{
      "name": "x",
      "base_url": "https://h",
      "steps": [
        {"id": 1, "kind": "api_call", "url": "/a"},
        {"id": 2, "kind": "api_call", "url": "/b"},
        {"id": 3, "kind": "api_call", "url": "/c"}
      ]
    }`)
	d := &stubDispatcher{responses: map[string]*response.Response{
		"https://h/a": ok(`{}`),
	}}
	e, err := New(sc, "", d)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel after the first dispatch.
	e.Dispatcher = dispatchFunc(func(req *Request) (*response.Response, error) {
		cancel()
		return ok(`{}`), nil
	})

	result, err := e.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if result.Steps[0].Status != Pass {
		t.Errorf("step 1 Status == %s", result.Steps[0].Status)
	}
	if result.Steps[1].Status != Skipped || result.Steps[2].Status != Skipped {
		t.Errorf("steps 2/3 = %s/%s",
			result.Steps[1].Status, result.Steps[2].Status)
	}
}

type dispatchFunc func(req *Request) (*response.Response, error)

func (f dispatchFunc) Dispatch(req *Request) (*response.Response, error) { return f(req) }

func TestRunStrictResolution(t *testing.T) {
	sc := mustParse(t, `{
      "name": "x",
      "steps": [{"id": 1, "kind": "api_call", "url": "https://h/{{nosuch}}"}]
    }`)
	d := &stubDispatcher{}
	e, err := New(sc, "", d)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	e.Strict = true

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if result.Status != Error || result.Steps[0].Error == nil {
		t.Errorf("result = %+v", result)
	}
	if len(d.requests) != 0 {
		t.Errorf("dispatched %d requests despite resolution failure", len(d.requests))
	}
}

func TestNewContextSeeding(t *testing.T) {
	dir := t.TempDir()
	csv := "username,password\nalice,secret1\nbob,secret2\n"
	if err := os.WriteFile(filepath.Join(dir, "users.csv"), []byte(csv), 0644); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	sc := mustParse(t, `{
      "name": "x",
      "base_url": "https://h",
      "steps": [{"id": 1, "kind": "api_call", "url": "/login/{{username}}"}],
      "data_sources": [
        {"name": "users", "type": "csv", "file": "users.csv",
         "columns": ["username", "password"]}
      ]
    }`)
	d := &stubDispatcher{}
	e, err := New(sc, dir, d)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	c := e.NewContext()
	user := c.Store.Get("username").String()
	if user != "alice" && user != "bob" {
		t.Fatalf("username = %q", user)
	}
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if got := d.requests[0].URL; got != "https://h/login/"+user {
		t.Errorf("got %q", got)
	}

	// A broken data source is fatal at engine construction.
	sc.DataSources[0].File = "nope.csv"
	if _, err := New(sc, dir, d); err == nil {
		t.Errorf("missing error for broken data source")
	}
}

// An Engine is shared by all of its contexts; iterations running in
// parallel goroutines must stay independent (own store, own result)
// while sharing the dispatcher and the loaded data sources.
func TestRunConcurrentContexts(t *testing.T) {
	dir := t.TempDir()
	csv := "username,password\nalice,secret1\nbob,secret2\n"
	if err := os.WriteFile(filepath.Join(dir, "users.csv"), []byte(csv), 0644); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	sc := mustParse(t, `{
      "name": "parallel",
      "base_url": "https://h",
      "steps": [
        {
          "id": 1, "kind": "api_call", "url": "/items",
          "extract": {"ids": {"type": "json_path", "expression": "$.results[*].id"}}
        },
        {"id": 2, "kind": "api_call", "url": "/item/{{random_from_array(ids)}}"}
      ],
      "data_sources": [
        {"name": "users", "type": "csv", "file": "users.csv",
         "columns": ["username", "password"]}
      ]
    }`)

	var mu sync.Mutex
	dispatched := 0
	d := dispatchFunc(func(req *Request) (*response.Response, error) {
		mu.Lock()
		dispatched++
		mu.Unlock()
		if req.URL == "https://h/items" {
			return ok(`{"results": [{"id": 1}, {"id": 2}, {"id": 3}]}`), nil
		}
		return ok(`{}`), nil
	})
	e, err := New(sc, dir, d)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	const users = 8
	results := make([]*Result, users)
	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			results[u], _ = e.NewContext().Run(context.Background())
		}(u)
	}
	wg.Wait()

	seen := map[string]bool{}
	for u := 0; u < users; u++ {
		r := results[u]
		if r.Status != Pass {
			t.Errorf("context %d: Status == %s\n%+v", u, r.Status, r.Steps)
		}
		if seen[r.ContextID] {
			t.Errorf("context %d: duplicate id %q", u, r.ContextID)
		}
		seen[r.ContextID] = true
	}
	mu.Lock()
	if dispatched != 2*users {
		t.Errorf("dispatched %d requests, want %d", dispatched, 2*users)
	}
	mu.Unlock()
}

func TestRequestBuilding(t *testing.T) {
	sc := mustParse(t, `{
      "name": "x",
      "base_url": "https://h",
      "steps": [{
        "id": 1, "kind": "api_call", "method": "POST", "url": "/order",
        "headers": {"Authorization": "Bearer {{token}}"},
        "params": {"limit": "{{limit}}"},
        "body": {"item": "{{item}}", "qty": 2}
      }]
    }`)
	d := &stubDispatcher{}
	e, err := New(sc, "", d)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	c := e.NewContext()
	c.Store.Set("token", scope.Str("t-1"))
	c.Store.Set("limit", scope.Str("25"))
	c.Store.Set("item", scope.Str("plumbus"))
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	req := d.requests[0]
	if req.Method != "POST" || req.URL != "https://h/order" {
		t.Errorf("request = %s %s", req.Method, req.URL)
	}
	if req.Header["Authorization"] != "Bearer t-1" {
		t.Errorf("header = %v", req.Header)
	}
	if req.Params["limit"] != "25" {
		t.Errorf("params = %v", req.Params)
	}
	if !strings.Contains(req.Body, `"item":"plumbus"`) ||
		!strings.Contains(req.Body, `"qty":2`) {
		t.Errorf("body = %s", req.Body)
	}
}
