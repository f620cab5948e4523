// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package httpdispatch executes resolved scenario requests over HTTP.
// It is the production implementation of engine.Dispatcher; tests use
// stub dispatchers instead.
package httpdispatch

import (
	"compress/gzip"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/vdobler/stride/engine"
	"github.com/vdobler/stride/response"
)

var (
	// DefaultAccept is the accept header to be sent if no accept
	// header is set explicitly in the step.
	DefaultAccept = "application/json"

	// DefaultTimeout is the per-request timeout used if a Client does
	// not set its own.
	DefaultTimeout = 10 * time.Second
)

// Transport is the http Transport used while making requests.
// It is exposed to allow different timeouts, less idle connections
// or laxer TLS settings.
var Transport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:    100,
	IdleConnTimeout: 90 * time.Second,
	TLSClientConfig: &tls.Config{
		InsecureSkipVerify: false,
	},
}

// Client dispatches requests over HTTP. The zero value is usable. A
// single Client is shared by all concurrently running contexts of an
// Engine, so it must be safe for concurrent use.
type Client struct {
	// Timeout of each request. If zero, DefaultTimeout applies.
	Timeout time.Duration

	// FollowRedirects makes the client follow up to 10 redirects;
	// otherwise the first redirect response itself is reported.
	FollowRedirects bool

	once   sync.Once
	client *http.Client
}

// init sets up the underlying http.Client exactly once, no matter how
// many contexts race into their first Dispatch.
func (c *Client) init() {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.client = &http.Client{
		Transport: Transport,
		Timeout:   timeout,
	}
	if !c.FollowRedirects {
		c.client.CheckRedirect = func(r *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
}

// Dispatch implements engine.Dispatcher's Dispatch method. The
// returned response has its body fully read and decoded; Duration
// covers the request and the body download.
func (c *Client) Dispatch(req *engine.Request) (*response.Response, error) {
	hr, err := newRequest(req)
	if err != nil {
		return nil, err
	}

	c.once.Do(c.init)

	start := time.Now()
	hresp, err := c.client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	var reader io.Reader = hresp.Body
	if hresp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(hresp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(reader)
	duration := time.Since(start)
	if err != nil {
		return nil, err
	}

	return &response.Response{
		StatusCode: hresp.StatusCode,
		Header:     hresp.Header,
		BodyStr:    string(body),
		Duration:   duration,
	}, nil
}

// newRequest crafts the underlying http request: query parameters are
// merged into the URL and default headers filled in.
func newRequest(req *engine.Request) (*http.Request, error) {
	target, err := mergeParams(req.URL, req.Params)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	hr, err := http.NewRequest(req.Method, target, body)
	if err != nil {
		return nil, err
	}

	for name, value := range req.Header {
		hr.Header.Set(name, value)
	}
	if hr.Header.Get("Accept") == "" {
		hr.Header.Set("Accept", DefaultAccept)
	}
	if req.Body != "" && hr.Header.Get("Content-Type") == "" {
		hr.Header.Set("Content-Type", "application/json")
	}
	return hr, nil
}

// mergeParams appends params to the query part of rawurl, keeping any
// query the resolved URL already carries.
func mergeParams(rawurl string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return rawurl, nil
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for name, value := range params {
		q.Set(name, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
