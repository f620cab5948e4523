// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package engine orchestrates the execution of a scenario: it seeds a
// virtual-user context from the scenario's data sources, then walks
// the steps in order, resolving templates, dispatching requests,
// extracting variables and evaluating assertions. Extracted variables
// flow forward into later steps of the same iteration, which is what
// correlates a chain of dependent API calls.
//
// The engine executes a single iteration per call; request pacing and
// virtual-user scheduling belong to the load-generation layer driving
// it.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vdobler/stride/check"
	"github.com/vdobler/stride/datasource"
	"github.com/vdobler/stride/extract"
	"github.com/vdobler/stride/resolve"
	"github.com/vdobler/stride/response"
	"github.com/vdobler/stride/scenario"
	"github.com/vdobler/stride/scope"
)

// Request is a fully resolved HTTP request, ready for dispatch. All
// template placeholders have been substituted.
type Request struct {
	Method string
	URL    string
	Header map[string]string

	// Params are appended to the URL's query by the dispatcher.
	Params map[string]string

	// Body is the raw request body, empty for body-less requests.
	Body string
}

// Dispatcher executes a resolved request. Implementations decide
// transport details like timeouts and redirect handling; the engine
// only cares about the executed response or a transport error.
type Dispatcher interface {
	Dispatch(req *Request) (*response.Response, error)
}

// Sleeper performs the pause of a wait step. Tests substitute a fake
// to keep wall-clock time out of the test run.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Engine executes iterations of one scenario. It is read-only after
// New and may be shared by concurrently running contexts.
type Engine struct {
	// Scenario to execute.
	Scenario *scenario.Scenario

	// Dispatcher executes the resolved requests. Required.
	Dispatcher Dispatcher

	// Sleeper performs wait steps. If nil, time.Sleep is used.
	Sleeper Sleeper

	// Strict turns permissive template fallbacks into step errors.
	Strict bool

	// Log is the logger to use.
	Log interface {
		Printf(format string, a ...interface{})
	}

	// Verbosity level in logging.
	Verbosity int

	rows map[string]datasource.RowSet
}

// New builds an Engine for sc, loading its data sources relative to
// baseDir. A missing or empty data source is a fatal error: a context
// cannot be seeded from it.
func New(sc *scenario.Scenario, baseDir string, d Dispatcher) (*Engine, error) {
	rows, err := datasource.LoadAll(sc, baseDir)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Scenario:   sc,
		Dispatcher: d,
		rows:       rows,
	}, nil
}

// Context is one virtual user: an isolated variable namespace plus the
// resolver working on it. Contexts are not safe for concurrent use,
// but distinct contexts of the same Engine are.
type Context struct {
	// ID is the unique identity of this virtual user.
	ID string

	// Store is the context's variable namespace.
	Store *scope.Store

	engine   *Engine
	resolver *resolve.Resolver
}

// NewContext creates a fresh virtual-user context, seeded with one
// randomly picked row per data source. Different contexts may pick the
// same row.
func (e *Engine) NewContext() *Context {
	c := &Context{
		ID:     uuid.New().String(),
		Store:  scope.NewStore(),
		engine: e,
	}
	c.resolver = &resolve.Resolver{Store: c.Store, Strict: e.Strict}
	names := make([]string, 0, len(e.rows))
	for name := range e.rows {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row := e.rows[name].Pick(resolve.RandomIntn)
		c.Store.Seed(row)
		c.debugf("Seeded %d fields from data source %q", len(row), name)
	}
	return c
}

// Run executes one full scenario iteration and returns its result.
// Run itself fails only on cancellation; step-level problems are
// recorded in the result and never abort the iteration.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	return e.NewContext().Run(ctx)
}

// Run executes one scenario iteration in this context. Variables
// extracted by earlier steps stay bound for the rest of the iteration.
func (c *Context) Run(ctx context.Context) (*Result, error) {
	sc := c.engine.Scenario
	result := &Result{
		ContextID: c.ID,
		Scenario:  sc.Name,
		Started:   time.Now(),
		Steps:     make([]StepResult, len(sc.Steps)),
	}
	defer func() { result.Duration = time.Since(result.Started) }()

	c.infof("Running scenario %q, %d steps", sc.Name, len(sc.Steps))

	var err error
	for i := range sc.Steps {
		step := &sc.Steps[i]
		sr := &result.Steps[i]
		sr.ID, sr.Name, sr.Kind = step.ID, step.Name, step.Kind

		if err != nil {
			sr.Status = Skipped
			continue
		}
		select {
		case <-ctx.Done():
			sr.Status = Skipped
			err = ctx.Err()
			continue
		default:
		}

		switch step.Kind {
		case scenario.Wait:
			c.wait(step, sr)
		default:
			c.apiCall(step, sr)
		}
		if sr.Status > result.Status {
			result.Status = sr.Status
		}
	}

	c.infof("Result: %s (%s)", result.Status, result.Duration)
	return result, err
}

// wait pauses the context. A template wait expression is resolved
// first; if it does not yield a duration the literal seconds apply.
func (c *Context) wait(step *scenario.Step, sr *StepResult) {
	secs := step.WaitSeconds
	if step.WaitExpr != "" {
		s, err := c.resolver.Resolve(step.WaitExpr)
		if err == nil {
			f, perr := strconv.ParseFloat(s, 64)
			if perr == nil && f >= 0 {
				secs = f
			} else if c.engine.Strict {
				err = fmt.Errorf("wait %q yields %q, not a duration", step.WaitExpr, s)
			}
		}
		if err != nil {
			sr.Status, sr.Error = Error, err
			return
		}
	}
	d := time.Duration(secs * float64(time.Second))
	c.debugf("Step %s: waiting %s", step.ID, d)
	sleeper := c.engine.Sleeper
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	sleeper.Sleep(d)
	sr.Status = Pass
}

// apiCall resolves, dispatches and evaluates one api_call step.
func (c *Context) apiCall(step *scenario.Step, sr *StepResult) {
	req, err := c.buildRequest(step)
	if err != nil {
		c.errorf("Step %s: %s", step.ID, err)
		sr.Status, sr.Error = Error, err
		sr.Assertions = failedVerdicts(step.Assertions)
		return
	}
	sr.Request = req

	c.debugf("Step %s: %s %s", step.ID, req.Method, req.URL)
	resp, err := c.engine.Dispatcher.Dispatch(req)
	if err != nil {
		// The iteration continues: later steps still run and report
		// their own outcomes, most likely failures of their own.
		c.errorf("Step %s: %s", step.ID, err)
		sr.Status, sr.Error = Error, err
		sr.Assertions = failedVerdicts(step.Assertions)
		return
	}
	sr.Response = resp

	c.extractAll(step, sr, resp)

	sr.Status = Pass
	sr.Assertions = make([]check.Verdict, len(step.Assertions))
	for i, spec := range step.Assertions {
		v := check.Evaluate(spec, resp)
		sr.Assertions[i] = v
		if !v.Pass {
			sr.Status = Fail
			c.infof("Step %s: assertion %d failed: %s", step.ID, i+1, v.Reason)
		}
	}
}

// buildRequest resolves every template of an api_call step. In strict
// mode the first resolution error aborts the step before dispatch.
func (c *Context) buildRequest(step *scenario.Step) (*Request, error) {
	rawurl := step.URL
	if !isAbsURL(rawurl) {
		rawurl = c.engine.Scenario.BaseURL + rawurl
	}
	url, err := c.resolver.Resolve(rawurl)
	if err != nil {
		return nil, err
	}
	header, err := c.resolver.ResolveMap(step.Header)
	if err != nil {
		return nil, err
	}
	params, err := c.resolver.ResolveMap(step.Params)
	if err != nil {
		return nil, err
	}
	body, err := c.buildBody(step.Body)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method: step.Method,
		URL:    url,
		Header: header,
		Params: params,
		Body:   body,
	}, nil
}

// buildBody renders the request body: strings are resolved as-is,
// structured bodies are resolved leaf-wise and re-marshaled to JSON.
func (c *Context) buildBody(body interface{}) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		return c.resolver.Resolve(b)
	default:
		tree, err := c.resolver.ResolveTree(b)
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(tree)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// extractAll runs the step's extractions in sorted variable-name order
// so repeated runs touch the store deterministically. Failures are
// recorded and the variable stays unset.
func (c *Context) extractAll(step *scenario.Step, sr *StepResult, resp *response.Response) {
	if len(step.Extract) == 0 {
		return
	}
	names := make([]string, 0, len(step.Extract))
	for name := range step.Extract {
		names = append(names, name)
	}
	sort.Strings(names)

	sr.Extractions = make(map[string]Extraction, len(names))
	for _, name := range names {
		value, err := c.extractOne(step.Extract[name], resp)
		sr.Extractions[name] = Extraction{Value: value, Err: err}
		if err != nil {
			c.infof("Step %s: extraction of %q failed: %s", step.ID, name, err)
			continue
		}
		c.Store.Set(name, value)
		c.debugf("Step %s: %s = %s", step.ID, name, value.String())
	}
}

func (c *Context) extractOne(spec scenario.ExtractSpec, resp *response.Response) (scope.Value, error) {
	ex, err := extract.FromSpec(spec)
	if err != nil {
		return scope.Value{}, err
	}
	return ex.Extract(resp)
}

// failedVerdicts marks every assertion of an undispatched step failed.
func failedVerdicts(specs []scenario.AssertionSpec) []check.Verdict {
	vs := make([]check.Verdict, len(specs))
	for i, spec := range specs {
		vs[i] = check.Verdict{Reason: "no response", Description: spec.Description}
	}
	return vs
}

func isAbsURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func (c *Context) errorf(format string, v ...interface{}) {
	if c.engine.Verbosity >= 0 && c.engine.Log != nil {
		format = "ERROR " + format + " [%s]"
		v = append(v, c.ID)
		c.engine.Log.Printf(format, v...)
	}
}

func (c *Context) infof(format string, v ...interface{}) {
	if c.engine.Verbosity >= 1 && c.engine.Log != nil {
		format = "INFO  " + format + " [%s]"
		v = append(v, c.ID)
		c.engine.Log.Printf(format, v...)
	}
}

func (c *Context) debugf(format string, v ...interface{}) {
	if c.engine.Verbosity >= 2 && c.engine.Log != nil {
		format = "DEBUG " + format + " [%s]"
		v = append(v, c.ID)
		c.engine.Log.Printf(format, v...)
	}
}
