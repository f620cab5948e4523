// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resolve rewrites {{...}} template placeholders in scenario
// strings into concrete values. A placeholder is either a bare
// variable reference or a random-selector function call:
//
//     {{user_id}}
//     {{random(1, 826)}}
//     {{random_from_array(character_ids)}}
//     {{random_subset_from_array(ids, 3)}}
//     {{random_index_from_array(episode_list)}}
//
// Placeholders are scanned left to right, non-nested and
// non-overlapping. Call arguments may be integer literals, variable
// references or nested calls; the contents are parsed by a small
// recursive-descent parser, not by regular expressions.
//
// The resolver is deliberately permissive: an undefined variable
// renders as the empty string and a selector over an empty array
// renders a fixed fallback, so one missing optional value does not
// abort an otherwise valid request. Strict mode turns these cases into
// errors instead.
package resolve

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vdobler/stride/scope"
)

// Random is the default source of randomness for placeholder
// resolution. It is guarded by a mutex so Resolvers of concurrent
// contexts may share it.
var Random = rand.New(rand.NewSource(time.Now().UnixNano()))
var randMux sync.Mutex

// RandomIntn returns a random int in the range [0,n) read from Random.
// It is safe for concurrent use.
func RandomIntn(n int) int {
	randMux.Lock()
	r := Random.Intn(n)
	randMux.Unlock()
	return r
}

// Resolver resolves templates against one context's variable store.
type Resolver struct {
	// Store is the variable namespace to read from.
	Store *scope.Store

	// Intn is the randomness source, behaving like rand.Intn.
	// If nil the package-level locked Random is used.
	Intn func(n int) int

	// Strict turns the permissive fallbacks (undefined variable ->
	// "", empty array -> "1"/"0", unparsable placeholder left as-is)
	// into errors.
	Strict bool
}

func (r *Resolver) intn(n int) int {
	if r.Intn != nil {
		return r.Intn(n)
	}
	return RandomIntn(n)
}

// Resolve substitutes every placeholder of s. In permissive mode the
// returned error is always nil.
func (r *Resolver) Resolve(s string) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	var out strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start == -1 {
			out.WriteString(s)
			return out.String(), nil
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			out.WriteString(s)
			return out.String(), nil
		}
		end += start
		out.WriteString(s[:start])

		inner := s[start+2 : end]
		repl, err := r.placeholder(inner)
		if err != nil {
			if r.Strict {
				return "", fmt.Errorf("resolving {{%s}}: %w", strings.TrimSpace(inner), err)
			}
			repl = s[start : end+2] // leave the occurrence verbatim
		}
		out.WriteString(repl)
		s = s[end+2:]
	}
}

// ResolveTree applies Resolve to every string leaf of an unmarshaled
// JSON tree, e.g. a request body. Numeric and boolean leaves pass
// through untouched.
func (r *Resolver) ResolveTree(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return r.Resolve(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			re, err := r.ResolveTree(e)
			if err != nil {
				return nil, err
			}
			out[i] = re
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			re, err := r.ResolveTree(e)
			if err != nil {
				return nil, err
			}
			out[k] = re
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolveMap resolves every value of m into a fresh map.
func (r *Resolver) ResolveMap(m map[string]string) (map[string]string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		rv, err := r.Resolve(v)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

// placeholder resolves the inner text of one {{...}} occurrence.
func (r *Resolver) placeholder(inner string) (string, error) {
	node, err := parseExpr(inner)
	if err != nil {
		return "", err
	}
	return r.eval(node)
}

func (r *Resolver) eval(n node) (string, error) {
	switch x := n.(type) {
	case varRef:
		v := r.Store.Get(x.name)
		if v.IsUndefined() {
			if r.Strict {
				return "", fmt.Errorf("undefined variable %q", x.name)
			}
			return "", nil
		}
		return v.String(), nil
	case numLit:
		return strconv.Itoa(x.val), nil
	case call:
		return r.call(x)
	}
	return "", fmt.Errorf("unexpected node %T", n)
}

func (r *Resolver) call(c call) (string, error) {
	switch c.name {
	case "random":
		return r.random(c)
	case "random_from_array":
		return r.randomFromArray(c)
	case "random_subset_from_array":
		return r.randomSubset(c)
	case "random_index_from_array":
		return r.randomIndex(c)
	}
	return "", fmt.Errorf("no such function %q", c.name)
}

// random draws an integer uniformly from [min, max] inclusive. The
// bounds may be literals, variables or nested calls. Bad bounds fall
// back to "1".
func (r *Resolver) random(c call) (string, error) {
	if len(c.args) != 2 {
		return "", fmt.Errorf("random wants 2 arguments, got %d", len(c.args))
	}
	lo, err1 := r.evalInt(c.args[0])
	hi, err2 := r.evalInt(c.args[1])
	if err1 != nil || err2 != nil || hi < lo {
		if r.Strict {
			return "", fmt.Errorf("bad range for random(%v, %v)", c.args[0], c.args[1])
		}
		return "1", nil
	}
	return strconv.Itoa(lo + r.intn(hi-lo+1)), nil
}

func (r *Resolver) randomFromArray(c call) (string, error) {
	elems, err := r.arrayArg(c, 1)
	if err != nil || len(elems) == 0 {
		if r.Strict {
			if err == nil {
				err = fmt.Errorf("empty array")
			}
			return "", fmt.Errorf("random_from_array: %w", err)
		}
		return "1", nil
	}
	return elems[r.intn(len(elems))].String(), nil
}

// randomSubset draws n distinct elements without replacement, in
// random permutation order, rendered as a JSON array literal. If the
// array has at most n elements the whole array is permuted.
func (r *Resolver) randomSubset(c call) (string, error) {
	elems, err := r.arrayArg(c, 2)
	if err != nil {
		if r.Strict {
			return "", fmt.Errorf("random_subset_from_array: %w", err)
		}
		return "[]", nil
	}
	n, err := r.evalInt(c.args[1])
	if err != nil || n < 0 {
		if r.Strict {
			return "", fmt.Errorf("random_subset_from_array: bad count")
		}
		n = 1
	}
	perm := make([]scope.Value, len(elems))
	copy(perm, elems)
	for i := len(perm) - 1; i > 0; i-- {
		j := r.intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	if n < len(perm) {
		perm = perm[:n]
	}
	return scope.ListOf(perm...).JSON(), nil
}

func (r *Resolver) randomIndex(c call) (string, error) {
	elems, err := r.arrayArg(c, 1)
	if err != nil || len(elems) == 0 {
		if r.Strict {
			if err == nil {
				err = fmt.Errorf("empty array")
			}
			return "", fmt.Errorf("random_index_from_array: %w", err)
		}
		return "0", nil
	}
	return strconv.Itoa(r.intn(len(elems))), nil
}

// arrayArg evaluates the first argument of c as an array variable.
// String values are tried as a JSON array first, then comma-split.
func (r *Resolver) arrayArg(c call, want int) ([]scope.Value, error) {
	if len(c.args) != want {
		return nil, fmt.Errorf("want %d arguments, got %d", want, len(c.args))
	}
	ref, ok := c.args[0].(varRef)
	if !ok {
		return nil, fmt.Errorf("first argument must be a variable name")
	}
	v := r.Store.Get(ref.name)
	if v.IsUndefined() {
		return nil, fmt.Errorf("undefined variable %q", ref.name)
	}
	elems, ok := v.AsList()
	if !ok {
		return nil, fmt.Errorf("variable %q is not an array", ref.name)
	}
	return elems, nil
}

// evalInt evaluates an argument to an integer. Variable references
// resolve through the store first.
func (r *Resolver) evalInt(n node) (int, error) {
	switch x := n.(type) {
	case numLit:
		return x.val, nil
	case varRef:
		f, ok := r.Store.Get(x.name).AsFloat()
		if !ok {
			return 0, fmt.Errorf("variable %q is not numeric", x.name)
		}
		return int(f), nil
	case call:
		s, err := r.call(x)
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(s)
	}
	return 0, fmt.Errorf("unexpected argument %T", n)
}
