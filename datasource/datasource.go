// Copyright 2025 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package datasource loads CSV and JSON side-files into named row-sets
// used to parameterize virtual-user contexts. Row-sets are read-only
// after Load and safe to share across contexts.
package datasource

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vdobler/stride/errorlist"
	"github.com/vdobler/stride/internal/jsonpath"
	"github.com/vdobler/stride/scenario"
	"github.com/vdobler/stride/scope"
)

// Row is one record of a row-set.
type Row map[string]scope.Value

// RowSet is an ordered list of rows.
type RowSet []Row

// Pick selects one row by uniform-random choice. intn must behave like
// rand.Intn. Selection is independent per call; rows may repeat across
// contexts.
func (rs RowSet) Pick(intn func(n int) int) Row {
	if len(rs) == 0 {
		return nil
	}
	return rs[intn(len(rs))]
}

// SourceError reports a missing or malformed side-file, or an
// expression yielding zero rows. It is fatal for any scenario step
// referencing the source's fields.
type SourceError struct {
	Name string // data source name
	File string // resolved file path
	Err  error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("data source %q (%s): %s", e.Name, e.File, e.Err)
}

func (e SourceError) Unwrap() error { return e.Err }

// Load reads the side-file named by spec. Relative paths are resolved
// against baseDir, the scenario file's directory. A source yielding
// zero rows is an error, not a silent skip.
func Load(spec scenario.DataSourceSpec, baseDir string) (RowSet, error) {
	file := spec.File
	if !filepath.IsAbs(file) {
		file = filepath.Join(baseDir, file)
	}
	fail := func(err error) error {
		return SourceError{Name: spec.Name, File: file, Err: err}
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fail(err)
	}

	var rows RowSet
	switch spec.Type {
	case "csv":
		rows, err = loadCSV(data, spec.Columns)
	case "json":
		rows, err = loadJSON(data, spec.Path)
	default:
		err = fmt.Errorf("unrecognized type %q", spec.Type)
	}
	if err != nil {
		return nil, fail(err)
	}
	if len(rows) == 0 {
		return nil, fail(fmt.Errorf("no rows"))
	}
	return rows, nil
}

// LoadAll loads every declared data source of sc. All sources are
// tried even after a failure so the error reports every broken
// side-file at once.
func LoadAll(sc *scenario.Scenario, baseDir string) (map[string]RowSet, error) {
	if len(sc.DataSources) == 0 {
		return nil, nil
	}
	var errs errorlist.List
	sets := make(map[string]RowSet, len(sc.DataSources))
	for _, spec := range sc.DataSources {
		rows, err := Load(spec, baseDir)
		if err != nil {
			errs = errs.Append(err)
			continue
		}
		sets[spec.Name] = rows
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}
	return sets, nil
}

// loadCSV maps each record onto the declared columns. The column list
// is authoritative; a header row equal to it (ignoring case) is
// skipped.
func loadCSV(data []byte, columns []string) (RowSet, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = len(columns)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	rows := make(RowSet, 0, len(records))
	for i, rec := range records {
		if i == 0 && isHeader(rec, columns) {
			continue
		}
		row := make(Row, len(columns))
		for j, col := range columns {
			row[col] = scope.Str(rec[j])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isHeader(rec, columns []string) bool {
	for i, col := range columns {
		if !strings.EqualFold(strings.TrimSpace(rec[i]), col) {
			return false
		}
	}
	return true
}

// loadJSON selects the row array with a wildcard JSONPath, one row per
// matched element. Elements that are not objects are wrapped as
// {value: element}.
func loadJSON(data []byte, path string) (RowSet, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	p, err := jsonpath.Parse(path)
	if err != nil {
		return nil, err
	}
	matches := p.Eval(doc)

	// A non-wildcard path pointing at an array still means "one row
	// per element".
	if !p.Wildcard() && len(matches) == 1 {
		if arr, ok := matches[0].([]interface{}); ok {
			matches = arr
		}
	}

	rows := make(RowSet, 0, len(matches))
	for _, m := range matches {
		obj, ok := m.(map[string]interface{})
		if !ok {
			obj = map[string]interface{}{"value": m}
		}
		row := make(Row, len(obj))
		for k, v := range obj {
			row[k] = scope.FromAny(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
