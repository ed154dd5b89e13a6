package sandbox

import (
	"github.com/dop251/goja"
	"github.com/go-go-golems/chartchat/pkg/dataset"
)

// newFrame exposes a read-only data frame. Every method returns a new frame.
func (e *env) newFrame(ds *dataset.Dataset) *goja.Object {
	o := e.vm.NewObject()
	e.attachRef(o, ds)

	names := ds.ColumnNames()
	cols := make([]any, len(names))
	for i, n := range names {
		cols[i] = n
	}
	e.mustSet(o, "columns", e.vm.NewArray(cols...))
	e.mustSet(o, "length", ds.NumRows())

	e.mustSet(o, "col", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		c, ok := ds.Column(name)
		if !ok {
			e.throw("unknown column %q, available: %v", name, names)
		}
		values := make([]any, len(c.Values))
		for i, v := range c.Values {
			values[i] = e.toJS(v)
		}
		return e.vm.NewArray(values...)
	})

	e.mustSet(o, "records", func(call goja.FunctionCall) goja.Value {
		rows := make([]any, ds.NumRows())
		for i := range rows {
			rows[i] = e.rowObject(ds, i)
		}
		return e.vm.NewArray(rows...)
	})

	e.mustSet(o, "head", func(call goja.FunctionCall) goja.Value {
		n := 5
		if !isMissing(call.Argument(0)) {
			n = int(call.Argument(0).ToInteger())
		}
		return e.newFrame(ds.Head(n))
	})

	e.mustSet(o, "filter", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			e.throw("filter expects a function (row, index) => boolean")
		}
		return e.newFrame(ds.Filter(func(row int) bool {
			res, err := fn(goja.Undefined(), e.rowObject(ds, row), e.vm.ToValue(row))
			if err != nil {
				panic(err)
			}
			return res.ToBoolean()
		}))
	})

	e.mustSet(o, "sortBy", func(call goja.FunctionCall) goja.Value {
		ascending := true
		if !isMissing(call.Argument(1)) {
			ascending = call.Argument(1).ToBoolean()
		}
		sorted, err := ds.SortBy(call.Argument(0).String(), ascending)
		if err != nil {
			e.throw("sortBy: %s", err.Error())
		}
		return e.newFrame(sorted)
	})

	e.mustSet(o, "select", func(call goja.FunctionCall) goja.Value {
		var columns []string
		for _, arg := range call.Arguments {
			columns = append(columns, e.stringList(arg, "select")...)
		}
		selected, err := ds.Select(columns...)
		if err != nil {
			e.throw("select: %s", err.Error())
		}
		return e.newFrame(selected)
	})

	e.mustSet(o, "unique", func(call goja.FunctionCall) goja.Value {
		values, err := ds.Unique(call.Argument(0).String())
		if err != nil {
			e.throw("unique: %s", err.Error())
		}
		ret := make([]any, len(values))
		for i, v := range values {
			ret[i] = e.toJS(v)
		}
		return e.vm.NewArray(ret...)
	})

	e.mustSet(o, "assign", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		src := call.Argument(1)
		var values []any
		if fn, ok := goja.AssertFunction(src); ok {
			values = make([]any, ds.NumRows())
			for row := range values {
				res, err := fn(goja.Undefined(), e.rowObject(ds, row), e.vm.ToValue(row))
				if err != nil {
					panic(err)
				}
				values[row] = e.toGo(res)
			}
		} else {
			values = e.arrayValues(src, "assign values")
		}
		c, err := dataset.ColumnFromValues(name, values)
		if err != nil {
			e.throw("assign: %s", err.Error())
		}
		assigned, err := ds.WithColumn(c)
		if err != nil {
			e.throw("assign: %s", err.Error())
		}
		return e.newFrame(assigned)
	})

	e.mustSet(o, "groupBy", func(call goja.FunctionCall) goja.Value {
		keys := e.stringList(call.Argument(0), "groupBy keys")
		if len(keys) == 0 {
			e.throw("groupBy expects a column name or a list of column names")
		}
		for _, k := range keys {
			if !ds.HasColumn(k) {
				e.throw("unknown column %q, available: %v", k, names)
			}
		}
		grouped := e.vm.NewObject()
		e.mustSet(grouped, "agg", func(call goja.FunctionCall) goja.Value {
			aggs := e.aggregations(call.Argument(0))
			out, err := ds.GroupBy(keys, aggs)
			if err != nil {
				e.throw("agg: %s", err.Error())
			}
			return e.newFrame(out)
		})
		return grouped
	})

	return o
}

// aggregations reads {col: "sum"} or {alias: ["col", "sum"]}.
func (e *env) aggregations(v goja.Value) []dataset.Aggregation {
	spec := e.options(v, "agg spec")
	var ret []dataset.Aggregation
	for _, out := range spec.Keys() {
		raw := spec.Get(out)
		if s, ok := raw.Export().(string); ok {
			ret = append(ret, dataset.Aggregation{Column: out, Func: dataset.AggFunc(s), As: out})
			continue
		}
		pair := e.arrayValues(raw, "agg "+out)
		if len(pair) != 2 {
			e.throw("agg %s must be \"func\" or [column, func]", out)
		}
		col, ok1 := pair[0].(string)
		fn, ok2 := pair[1].(string)
		if !ok1 || !ok2 {
			e.throw("agg %s must be \"func\" or [column, func]", out)
		}
		ret = append(ret, dataset.Aggregation{Column: col, Func: dataset.AggFunc(fn), As: out})
	}
	if len(ret) == 0 {
		e.throw("agg expects at least one aggregation")
	}
	return ret
}

func (e *env) rowObject(ds *dataset.Dataset, row int) *goja.Object {
	o := e.vm.NewObject()
	for _, name := range ds.ColumnNames() {
		_ = o.Set(name, e.toJS(ds.Value(row, name)))
	}
	return o
}
