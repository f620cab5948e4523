// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scope

import "sort"

// Store is the variable namespace of one virtual-user context. It is
// owned exclusively by that context; parallelism across contexts never
// shares a Store, so no locking is done here.
type Store struct {
	vars map[string]Value
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{vars: make(map[string]Value)}
}

// Get returns the value bound to name. An unbound name yields the
// Undefined zero Value; Get never fails so it is safe in the template
// resolver's hot path. The resolver, not the store, decides the
// fallback for undefined reads.
func (s *Store) Get(name string) Value {
	return s.vars[name]
}

// Set binds name to v. Later bindings win.
func (s *Store) Set(name string, v Value) {
	s.vars[name] = v
}

// Seed bulk-initializes the store from a data-source row. Existing
// bindings with the same names are overwritten.
func (s *Store) Seed(row map[string]Value) {
	for name, v := range row {
		s.vars[name] = v
	}
}

// Names returns the bound variable names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
