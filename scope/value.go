// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scope holds the per-context variable namespace of a scenario
// execution: a tagged Value variant and the Store mapping names to
// values. A Store belongs to exactly one virtual-user context and is
// never shared.
package scope

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind enumerates the variants a Value can take.
type Kind int

const (
	Undefined Kind = iota // no value bound
	String
	Number
	Bool
	List // ordered list of Values
	Tree // arbitrary JSON subtree (objects, mixed nesting)
)

func (k Kind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Tree:
		return "tree"
	}
	return "kind-" + strconv.Itoa(int(k))
}

// Value is a dynamically typed scenario value. The zero Value is
// Undefined. Conversions between variants are total: every Value has a
// string form, and list conversion falls back to parsing/splitting
// string values.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	tree interface{}
}

// Str returns a String value.
func Str(s string) Value { return Value{kind: String, str: s} }

// Num returns a Number value.
func Num(f float64) Value { return Value{kind: Number, num: f} }

// Boolean returns a Bool value.
func Boolean(b bool) Value { return Value{kind: Bool, b: b} }

// ListOf returns a List value of the given elements.
func ListOf(elems ...Value) Value { return Value{kind: List, list: elems} }

// FromAny converts an unmarshaled JSON value into a Value. JSON null
// becomes Undefined.
func FromAny(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case string:
		return Str(x)
	case float64:
		return Num(x)
	case int:
		return Num(float64(x))
	case int64:
		return Num(float64(x))
	case bool:
		return Boolean(x)
	case []interface{}:
		elems := make([]Value, len(x))
		for i, e := range x {
			elems[i] = FromAny(e)
		}
		return ListOf(elems...)
	default:
		return Value{kind: Tree, tree: v}
	}
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether no value is bound.
func (v Value) IsUndefined() bool { return v.kind == Undefined }

// String returns the scalar string form of v. Numbers render without
// a trailing ".0", lists render comma-joined, trees render as compact
// JSON and Undefined renders empty.
func (v Value) String() string {
	switch v.kind {
	case Undefined:
		return ""
	case String:
		return v.str
	case Number:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	case List:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return strings.Join(parts, ",")
	case Tree:
		raw, err := json.Marshal(v.tree)
		if err != nil {
			return ""
		}
		return string(raw)
	}
	return ""
}

// JSON returns the JSON rendition of v. Strings are quoted, lists
// become array literals. Undefined renders as null.
func (v Value) JSON() string {
	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return "null"
	}
	return string(raw)
}

// Interface converts v back into the interface{} shape used by
// encoding/json.
func (v Value) Interface() interface{} {
	switch v.kind {
	case Undefined:
		return nil
	case String:
		return v.str
	case Number:
		return v.num
	case Bool:
		return v.b
	case List:
		out := make([]interface{}, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case Tree:
		return v.tree
	}
	return nil
}

// AsList converts v to an ordered list of Values: lists convert as
// themselves, tree-shaped JSON arrays element-wise, and strings first
// by JSON array parsing, then by comma splitting. The second return is
// false if no list interpretation exists.
func (v Value) AsList() ([]Value, bool) {
	switch v.kind {
	case List:
		return v.list, true
	case Tree:
		if arr, ok := v.tree.([]interface{}); ok {
			elems := make([]Value, len(arr))
			for i, e := range arr {
				elems[i] = FromAny(e)
			}
			return elems, true
		}
		return nil, false
	case String:
		s := strings.TrimSpace(v.str)
		if strings.HasPrefix(s, "[") {
			var arr []interface{}
			if err := json.Unmarshal([]byte(s), &arr); err == nil {
				elems := make([]Value, len(arr))
				for i, e := range arr {
					elems[i] = FromAny(e)
				}
				return elems, true
			}
		}
		if s == "" {
			return nil, true
		}
		parts := strings.Split(s, ",")
		elems := make([]Value, len(parts))
		for i, p := range parts {
			elems[i] = Str(strings.TrimSpace(p))
		}
		return elems, true
	}
	return nil, false
}

// AsFloat converts v to a float64 if possible.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case Number:
		return v.num, true
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
