package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Take returns a new Dataset containing the given rows in the given order.
func (d *Dataset) Take(rows []int) *Dataset {
	cols := make([]Column, len(d.columns))
	for i, c := range d.columns {
		values := make([]any, len(rows))
		for j, r := range rows {
			values[j] = c.Values[r]
		}
		cols[i] = Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return fromNormalized(cols, len(rows))
}

// Filter keeps the rows for which keep returns true.
func (d *Dataset) Filter(keep func(row int) bool) *Dataset {
	rows := make([]int, 0, d.rows)
	for i := 0; i < d.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return d.Take(rows)
}

// Head returns the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > d.rows {
		n = d.rows
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return d.Take(rows)
}

// SortBy sorts rows on a column. Missing values sort last in both directions.
func (d *Dataset) SortBy(name string, ascending bool) (*Dataset, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, errors.Errorf("unknown column %q", name)
	}
	values := d.columns[i].Values
	rows := make([]int, d.rows)
	for r := range rows {
		rows[r] = r
	}
	sort.SliceStable(rows, func(a, b int) bool {
		va, vb := values[rows[a]], values[rows[b]]
		if va == nil || vb == nil {
			return va != nil
		}
		c := Compare(va, vb)
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return d.Take(rows), nil
}

// Select keeps only the named columns, in the given order.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		i, ok := d.index[n]
		if !ok {
			return nil, errors.Errorf("unknown column %q", n)
		}
		cols = append(cols, d.columns[i])
	}
	return fromNormalized(cols, d.rows), nil
}

// WithColumn returns a Dataset with c appended, or replacing the column of the same name.
func (d *Dataset) WithColumn(c Column) (*Dataset, error) {
	if len(c.Values) != d.rows && len(d.columns) > 0 {
		return nil, errors.Errorf("column %q has %d values, expected %d", c.Name, len(c.Values), d.rows)
	}
	cols := make([]Column, 0, len(d.columns)+1)
	replaced := false
	for _, existing := range d.columns {
		if existing.Name == c.Name {
			cols = append(cols, c)
			replaced = true
			continue
		}
		cols = append(cols, existing)
	}
	if !replaced {
		cols = append(cols, c)
	}
	return New(cols...)
}

// Unique returns the distinct non-missing values of a column in first-seen order.
func (d *Dataset) Unique(name string) ([]any, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, errors.Errorf("unknown column %q", name)
	}
	return distinct(d.columns[i].Values), nil
}

func distinct(values []any) []any {
	seen := map[string]struct{}{}
	ret := []any{}
	for _, v := range values {
		if v == nil {
			continue
		}
		k := key(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ret = append(ret, v)
	}
	return ret
}

// AggFunc names an aggregation applied by GroupBy.
type AggFunc string

const (
	AggSum     AggFunc = "sum"
	AggMean    AggFunc = "mean"
	AggCount   AggFunc = "count"
	AggMin     AggFunc = "min"
	AggMax     AggFunc = "max"
	AggNUnique AggFunc = "nunique"
	AggFirst   AggFunc = "first"
	AggLast    AggFunc = "last"
	AggMedian  AggFunc = "median"
)

type Aggregation struct {
	Column string
	Func   AggFunc
	// As names the output column; defaults to Column.
	As string
}

// GroupBy groups rows on the key columns and applies the aggregations. Groups are
// returned sorted by key, missing keys dropped, like pandas' default groupby.
func (d *Dataset) GroupBy(keys []string, aggs []Aggregation) (*Dataset, error) {
	if len(keys) == 0 {
		return nil, errors.New("groupBy requires at least one key column")
	}
	keyCols := make([]Column, len(keys))
	for i, k := range keys {
		idx, ok := d.index[k]
		if !ok {
			return nil, errors.Errorf("unknown column %q", k)
		}
		keyCols[i] = d.columns[idx]
	}
	for _, a := range aggs {
		idx, ok := d.index[a.Column]
		if !ok {
			return nil, errors.Errorf("unknown column %q", a.Column)
		}
		if err := checkAgg(a.Func, d.columns[idx].Type); err != nil {
			return nil, errors.Wrapf(err, "column %q", a.Column)
		}
	}

	type group struct {
		keys []any
		rows []int
	}
	groups := map[string]*group{}
	order := []*group{}
rowLoop:
	for r := 0; r < d.rows; r++ {
		parts := make([]string, len(keyCols))
		kv := make([]any, len(keyCols))
		for i, kc := range keyCols {
			v := kc.Values[r]
			if v == nil {
				continue rowLoop
			}
			kv[i] = v
			parts[i] = key(v)
		}
		k := strings.Join(parts, "\x00")
		g, ok := groups[k]
		if !ok {
			g = &group{keys: kv}
			groups[k] = g
			order = append(order, g)
		}
		g.rows = append(g.rows, r)
	}
	sort.SliceStable(order, func(a, b int) bool {
		for i := range keyCols {
			if c := Compare(order[a].keys[i], order[b].keys[i]); c != 0 {
				return c < 0
			}
		}
		return false
	})

	out := make([]Column, 0, len(keys)+len(aggs))
	for i, kc := range keyCols {
		values := make([]any, len(order))
		for j, g := range order {
			values[j] = g.keys[i]
		}
		out = append(out, Column{Name: kc.Name, Type: kc.Type, Values: values})
	}
	for _, a := range aggs {
		src := d.columns[d.index[a.Column]]
		name := a.As
		if name == "" {
			name = a.Column
		}
		values := make([]any, len(order))
		for j, g := range order {
			picked := make([]any, len(g.rows))
			for n, r := range g.rows {
				picked[n] = src.Values[r]
			}
			values[j] = applyAgg(a.Func, picked)
		}
		out = append(out, Column{Name: name, Type: aggType(a.Func, src.Type), Values: values})
	}
	return New(out...)
}

func checkAgg(fn AggFunc, t ColumnType) error {
	switch fn {
	case AggSum, AggMean, AggMedian:
		if t != TypeNumeric && t != TypeBool {
			return errors.Errorf("%s requires a numeric column, got %s", fn, t)
		}
	case AggCount, AggNUnique, AggMin, AggMax, AggFirst, AggLast:
	default:
		return errors.Errorf("unknown aggregation %q", fn)
	}
	return nil
}

func aggType(fn AggFunc, src ColumnType) ColumnType {
	switch fn {
	case AggSum, AggMean, AggMedian, AggCount, AggNUnique:
		return TypeNumeric
	}
	return src
}

func applyAgg(fn AggFunc, values []any) any {
	nonNil := make([]any, 0, len(values))
	for _, v := range values {
		if v != nil {
			nonNil = append(nonNil, v)
		}
	}
	switch fn {
	case AggCount:
		return float64(len(nonNil))
	case AggNUnique:
		return float64(len(distinct(nonNil)))
	case AggFirst:
		if len(nonNil) == 0 {
			return nil
		}
		return nonNil[0]
	case AggLast:
		if len(nonNil) == 0 {
			return nil
		}
		return nonNil[len(nonNil)-1]
	case AggMin, AggMax:
		var best any
		for _, v := range nonNil {
			if best == nil {
				best = v
				continue
			}
			c := Compare(v, best)
			if (fn == AggMin && c < 0) || (fn == AggMax && c > 0) {
				best = v
			}
		}
		return best
	}

	nums := make([]float64, 0, len(nonNil))
	for _, v := range nonNil {
		switch n := v.(type) {
		case float64:
			nums = append(nums, n)
		case bool:
			if n {
				nums = append(nums, 1)
			} else {
				nums = append(nums, 0)
			}
		}
	}
	switch fn {
	case AggSum:
		s := 0.0
		for _, n := range nums {
			s += n
		}
		return s
	case AggMean:
		if len(nums) == 0 {
			return nil
		}
		s := 0.0
		for _, n := range nums {
			s += n
		}
		return s / float64(len(nums))
	case AggMedian:
		if len(nums) == 0 {
			return nil
		}
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return nums[mid]
		}
		return (nums[mid-1] + nums[mid]) / 2
	}
	return nil
}

// Compare orders two non-nil values of the same column type. Values of different types
// compare by their type name so that ordering stays total.
func Compare(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func key(v any) string {
	switch tv := v.(type) {
	case time.Time:
		return "t:" + tv.UTC().Format(time.RFC3339Nano)
	case float64:
		if tv == math.Trunc(tv) {
			return fmt.Sprintf("n:%.0f", tv)
		}
		return fmt.Sprintf("n:%v", tv)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// FromRecords builds a Dataset from row maps. Column order follows names; column types
// are inferred from the first non-missing value of each column.
func FromRecords(names []string, records []map[string]any) (*Dataset, error) {
	cols := make([]Column, len(names))
	for i, n := range names {
		values := make([]any, len(records))
		for j, r := range records {
			values[j] = r[n]
		}
		c, err := ColumnFromValues(n, values)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	return New(cols...)
}

// ColumnFromValues infers the column type from the first non-missing value. A column
// without values is typed as text.
func ColumnFromValues(name string, values []any) (Column, error) {
	t := ColumnType("")
	for _, v := range values {
		if v == nil {
			continue
		}
		t = TypeOf(v)
		if t == "" {
			return Column{}, errors.Errorf("column %q: unsupported value type %T", name, v)
		}
		break
	}
	if t == "" {
		t = TypeText
	}
	for _, v := range values {
		if v != nil && TypeOf(v) != t {
			return Column{}, errors.Errorf("column %q mixes %s and %T values", name, t, v)
		}
	}
	return Column{Name: name, Type: t, Values: values}, nil
}

func fromNormalized(cols []Column, rows int) *Dataset {
	ds := &Dataset{
		columns: cols,
		index:   make(map[string]int, len(cols)),
		rows:    rows,
	}
	for i, c := range cols {
		ds.index[c.Name] = i
	}
	return ds
}
