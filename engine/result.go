// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"fmt"
	"time"

	"github.com/vdobler/stride/check"
	"github.com/vdobler/stride/response"
	"github.com/vdobler/stride/scenario"
	"github.com/vdobler/stride/scope"
)

// Status describes the outcome of a step or a whole run. The order
// matters: a result's status is the numeric maximum of its steps'
// statuses.
type Status int

const (
	NotRun  Status = iota // Not yet executed
	Skipped               // Omitted, e.g. after cancellation
	Pass                  // That's what we want
	Fail                  // One or more assertions failed
	Error                 // Request dispatch or template resolution failed
)

func (s Status) String() string {
	return []string{"NotRun", "Skipped", "Pass", "Fail", "Error"}[int(s)]
}

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || s > Error {
		return []byte(""), fmt.Errorf("no such status %d", s)
	}
	return []byte(s.String()), nil
}

// Result captures the outcome of one scenario iteration by one
// virtual-user context.
type Result struct {
	// ContextID identifies the virtual-user context that produced
	// this result.
	ContextID string

	// Scenario is the name of the executed scenario.
	Scenario string

	Status   Status
	Started  time.Time
	Duration time.Duration

	// Steps holds one entry per scenario step, in execution order,
	// including steps skipped after cancellation.
	Steps []StepResult
}

// StepResult is the outcome of one step.
type StepResult struct {
	ID   string
	Name string
	Kind scenario.StepKind

	Status Status

	// Request is the fully resolved request of an api_call step, nil
	// for wait steps and for steps whose resolution failed.
	Request *Request

	// Response is the executed response, nil if dispatch failed.
	Response *response.Response

	// Error is the dispatch or resolution error of an Error step.
	Error error

	// Extractions records every attempted extraction by variable name.
	Extractions map[string]Extraction

	// Assertions holds the verdicts in the order the step declares
	// them.
	Assertions []check.Verdict
}

// Extraction is the outcome of one variable extraction. A failed
// extraction leaves the variable unset and never fails the step.
type Extraction struct {
	Value scope.Value
	Err   error
}
