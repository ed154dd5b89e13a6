// Package dataset holds the read-only tabular data that dashboard pages hand to the
// chart assistant.
//
// A Dataset is a set of named, typed columns with a fixed row count. Values are stored
// column-wise as float64 (numeric), string (text), time.Time (temporal), bool, or nil for
// missing entries. Every operation returns a new Dataset; the receiver is never mutated.
package dataset

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

type ColumnType string

const (
	TypeText     ColumnType = "text"
	TypeNumeric  ColumnType = "numeric"
	TypeTemporal ColumnType = "temporal"
	TypeBool     ColumnType = "bool"
)

// Column is a named, typed vector of values.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

type Dataset struct {
	columns []Column
	index   map[string]int
	rows    int
}

// New builds a Dataset from columns of equal length. Integer and float32 values in
// numeric columns are normalized to float64.
func New(columns ...Column) (*Dataset, error) {
	ds := &Dataset{
		columns: make([]Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if c.Name == "" {
			return nil, errors.Errorf("column %d has no name", i)
		}
		if _, ok := ds.index[c.Name]; ok {
			return nil, errors.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			ds.rows = len(c.Values)
		} else if len(c.Values) != ds.rows {
			return nil, errors.Errorf("column %q has %d values, expected %d", c.Name, len(c.Values), ds.rows)
		}
		values := make([]any, len(c.Values))
		for j, v := range c.Values {
			nv, err := normalizeValue(c.Type, v)
			if err != nil {
				return nil, errors.Wrapf(err, "column %q row %d", c.Name, j)
			}
			values[j] = nv
		}
		ds.index[c.Name] = len(ds.columns)
		ds.columns = append(ds.columns, Column{Name: c.Name, Type: c.Type, Values: values})
	}
	return ds, nil
}

// MustNew is New for fixtures and tests.
func MustNew(columns ...Column) *Dataset {
	ds, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return ds
}

func (d *Dataset) NumRows() int {
	if d == nil {
		return 0
	}
	return d.rows
}

func (d *Dataset) NumColumns() int {
	if d == nil {
		return 0
	}
	return len(d.columns)
}

// ColumnNames returns the column names in declaration order.
func (d *Dataset) ColumnNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns a copy of the named column.
func (d *Dataset) Column(name string) (Column, bool) {
	if d == nil {
		return Column{}, false
	}
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	c := d.columns[i]
	values := make([]any, len(c.Values))
	copy(values, c.Values)
	return Column{Name: c.Name, Type: c.Type, Values: values}, true
}

func (d *Dataset) HasColumn(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.index[name]
	return ok
}

// ColumnType returns the type of the named column.
func (d *Dataset) ColumnType(name string) (ColumnType, bool) {
	if d == nil {
		return "", false
	}
	i, ok := d.index[name]
	if !ok {
		return "", false
	}
	return d.columns[i].Type, true
}

// Value returns the value at row for the named column, nil when missing.
func (d *Dataset) Value(row int, name string) any {
	i, ok := d.index[name]
	if !ok || row < 0 || row >= d.rows {
		return nil
	}
	return d.columns[i].Values[row]
}

// Row returns the row as a column name → value map.
func (d *Dataset) Row(row int) map[string]any {
	ret := make(map[string]any, len(d.columns))
	for _, c := range d.columns {
		ret[c.Name] = c.Values[row]
	}
	return ret
}

func (d *Dataset) String() string {
	return fmt.Sprintf("Dataset(%d rows x %d columns)", d.NumRows(), d.NumColumns())
}

func normalizeValue(t ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeNumeric:
		f, ok := toFloat(v)
		if !ok {
			return nil, errors.Errorf("expected number, got %T", v)
		}
		if math.IsNaN(f) {
			return nil, nil
		}
		return f, nil
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("expected string, got %T", v)
		}
		return s, nil
	case TypeTemporal:
		switch tv := v.(type) {
		case time.Time:
			if tv.IsZero() {
				return nil, nil
			}
			return tv, nil
		case *time.Time:
			if tv == nil || tv.IsZero() {
				return nil, nil
			}
			return *tv, nil
		}
		return nil, errors.Errorf("expected time, got %T", v)
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.Errorf("expected bool, got %T", v)
		}
		return b, nil
	default:
		return v, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// TypeOf returns the column type a Go value belongs to, or "" for unsupported values.
func TypeOf(v any) ColumnType {
	switch v.(type) {
	case string:
		return TypeText
	case time.Time, *time.Time:
		return TypeTemporal
	case bool:
		return TypeBool
	}
	if _, ok := toFloat(v); ok {
		return TypeNumeric
	}
	return ""
}
