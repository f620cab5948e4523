// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errorlist contains a type to collect errors.
package errorlist

import (
	"strings"
)

// List is a collection of errors.
type List []error

// Append err to el. Nil errors are dropped, nested Lists are flattened.
func (el List) Append(err error) List {
	if err == nil {
		return el
	}
	if list, ok := err.(List); ok {
		return append(el, list...)
	}
	return append(el, err)
}

// Error implements the Error method of error.
func (el List) Error() string {
	return strings.Join(el.AsStrings(), "; ")
}

// AsError returns el properly returning nil for an empty el.
func (el List) AsError() error {
	if len(el) == 0 {
		return nil
	}
	return el
}

// AsStrings returns the error list as a string slice.
func (el List) AsStrings() []string {
	s := []string{}
	for _, e := range el {
		if nel, ok := e.(List); ok {
			s = append(s, nel.AsStrings()...)
		} else {
			s = append(s, e.Error())
		}
	}
	return s
}
