// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httpdispatch

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/vdobler/stride/engine"
	"github.com/vdobler/stride/scenario"
)

func TestDispatch(t *testing.T) {
	var seen *http.Request
	var seenBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		body, _ := io.ReadAll(r.Body)
		seenBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(201)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer ts.Close()

	c := &Client{}
	resp, err := c.Dispatch(&engine.Request{
		Method: "POST",
		URL:    ts.URL + "/order",
		Header: map[string]string{"X-Custom": "yes"},
		Params: map[string]string{"limit": "25", "page": "2"},
		Body:   `{"item": "plumbus"}`,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	if resp.StatusCode != 201 {
		t.Errorf("StatusCode == %d", resp.StatusCode)
	}
	if resp.BodyStr != `{"ok": true}` {
		t.Errorf("BodyStr == %q", resp.BodyStr)
	}
	if resp.Duration <= 0 {
		t.Errorf("Duration == %s", resp.Duration)
	}

	if seen.URL.Path != "/order" {
		t.Errorf("Path == %q", seen.URL.Path)
	}
	q := seen.URL.Query()
	if q.Get("limit") != "25" || q.Get("page") != "2" {
		t.Errorf("Query == %q", seen.URL.RawQuery)
	}
	if seen.Header.Get("X-Custom") != "yes" {
		t.Errorf("X-Custom == %q", seen.Header.Get("X-Custom"))
	}
	if seen.Header.Get("Accept") != DefaultAccept {
		t.Errorf("Accept == %q", seen.Header.Get("Accept"))
	}
	if seen.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type == %q", seen.Header.Get("Content-Type"))
	}
	if seenBody != `{"item": "plumbus"}` {
		t.Errorf("body == %q", seenBody)
	}
}

func TestDispatchGzip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(`{"compressed": true}`))
		gz.Close()
	}))
	defer ts.Close()

	c := &Client{}
	resp, err := c.Dispatch(&engine.Request{Method: "GET", URL: ts.URL})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if resp.BodyStr != `{"compressed": true}` {
		t.Errorf("BodyStr == %q", resp.BodyStr)
	}
}

func TestDispatchNoRedirectFollow(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		w.Write([]byte("end"))
	}))
	defer ts.Close()

	c := &Client{}
	resp, err := c.Dispatch(&engine.Request{Method: "GET", URL: ts.URL + "/start"})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	// The redirect itself is reported, not followed.
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode == %d", resp.StatusCode)
	}

	follower := &Client{FollowRedirects: true}
	resp, err = follower.Dispatch(&engine.Request{Method: "GET", URL: ts.URL + "/start"})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if resp.StatusCode != 200 || resp.BodyStr != "end" {
		t.Errorf("got %d %q", resp.StatusCode, resp.BodyStr)
	}
}

// One Engine and one Client are shared by every virtual-user context,
// so concurrent iterations must not trip the race detector.
func TestDispatchConcurrentContexts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [{"id": 1}, {"id": 2}]}`))
	}))
	defer ts.Close()

	doc := fmt.Sprintf(`{
      "name": "parallel",
      "base_url": %q,
      "steps": [{
        "id": 1, "kind": "api_call", "url": "/items",
        "extract": {"ids": {"type": "json_path", "expression": "$.results[*].id"}},
        "assertions": [{"type": "status_code", "expected": 200}]
      }]
    }`, ts.URL)
	sc, err := scenario.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	e, err := engine.New(sc, "", &Client{})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	const users = 8
	results := make([]*engine.Result, users)
	errs := make([]error, users)
	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			results[u], errs[u] = e.NewContext().Run(context.Background())
		}(u)
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		if errs[u] != nil {
			t.Errorf("context %d: unexpected error %s", u, errs[u])
			continue
		}
		if results[u].Status != engine.Pass {
			t.Errorf("context %d: Status == %s", u, results[u].Status)
		}
	}
}

func TestMergeParams(t *testing.T) {
	got, err := mergeParams("https://h/p?a=1", map[string]string{"b": "x y"})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if got != "https://h/p?a=1&b=x+y" {
		t.Errorf("got %q", got)
	}
	if got, _ := mergeParams("https://h/p", nil); got != "https://h/p" {
		t.Errorf("got %q", got)
	}
}
