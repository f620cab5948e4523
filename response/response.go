// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package response provides a type capturing an executed HTTP response.
// Its main purpose is breaking an import cycle between engine and the
// extract and check packages.
package response

import (
	"net/http"
	"strings"
	"time"
)

// Response captures information about a HTTP response as handed back by
// the dispatch collaborator. The body has been read completely; the
// engine never streams.
type Response struct {
	// StatusCode is the HTTP status code, e.g. 200.
	StatusCode int

	// Header contains the response headers.
	Header http.Header

	// BodyStr is the received body.
	BodyStr string

	// Duration is the time to receive the response and read the
	// whole body.
	Duration time.Duration
}

// Body returns a reader of the response body.
func (resp *Response) Body() *strings.Reader {
	return strings.NewReader(resp.BodyStr)
}

// ElapsedMS returns the response duration in milliseconds.
func (resp *Response) ElapsedMS() float64 {
	return float64(resp.Duration) / float64(time.Millisecond)
}
