package sandbox

import (
	"strconv"

	"github.com/dop251/goja"
	"github.com/go-go-golems/chartchat/pkg/chart"
	"github.com/go-go-golems/chartchat/pkg/dataset"
)

// goFactory lets go.Figure and the trace constructors work both with and without new.
const goFactory = `(function (native) {
	function Figure(spec) { return native.figure(spec); }
	function Bar(spec) { return native.trace("bar", spec); }
	function Scatter(spec) { return native.trace("scatter", spec); }
	function Pie(spec) { return native.trace("pie", spec); }
	function Histogram(spec) { return native.trace("histogram", spec); }
	return { Figure: Figure, Bar: Bar, Scatter: Scatter, Pie: Pie, Histogram: Histogram };
})`

func (e *env) newFigureObject(f *chart.Figure) *goja.Object {
	o := e.vm.NewObject()
	e.attachRef(o, f)

	e.mustSet(o, "add_trace", func(call goja.FunctionCall) goja.Value {
		t := e.traceFromValue(call.Argument(0))
		if err := f.AddTrace(t); err != nil {
			e.throw("add_trace: %s", err.Error())
		}
		return o
	})
	e.mustSet(o, "update_layout", func(call goja.FunctionCall) goja.Value {
		if err := f.UpdateLayout(e.exportMap(call.Argument(0), "update_layout")); err != nil {
			e.throw("%s", err.Error())
		}
		return o
	})
	e.mustSet(o, "update_xaxes", func(call goja.FunctionCall) goja.Value {
		if err := f.UpdateXAxis(e.exportMap(call.Argument(0), "update_xaxes")); err != nil {
			e.throw("%s", err.Error())
		}
		return o
	})
	e.mustSet(o, "update_yaxes", func(call goja.FunctionCall) goja.Value {
		if err := f.UpdateYAxis(e.exportMap(call.Argument(0), "update_yaxes")); err != nil {
			e.throw("%s", err.Error())
		}
		return o
	})
	return o
}

func (e *env) requireFigure(v goja.Value, what string) *chart.Figure {
	f, ok := e.getRef(v).(*chart.Figure)
	if !ok {
		e.throw("%s must be a figure", what)
	}
	return f
}

func (e *env) newTraceObject(t chart.Trace) *goja.Object {
	o := e.vm.NewObject()
	e.attachRef(o, &t)
	e.mustSet(o, "type", string(t.Type))
	e.mustSet(o, "name", t.Name)
	return o
}

// newGraphObjects builds the go namespace.
func (e *env) newGraphObjects() (*goja.Object, error) {
	native := e.vm.NewObject()
	e.mustSet(native, "figure", func(call goja.FunctionCall) goja.Value {
		return e.newFigureObject(e.figureFromSpec(call.Argument(0)))
	})
	e.mustSet(native, "trace", func(call goja.FunctionCall) goja.Value {
		kind := call.Argument(0).String()
		return e.newTraceObject(e.traceFromSpec(kind, e.options(call.Argument(1), "go."+kind+" spec")))
	})

	factory, err := e.vm.RunString(goFactory)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(factory)
	if !ok {
		return nil, errNotCallable
	}
	res, err := fn(goja.Undefined(), native)
	if err != nil {
		return nil, err
	}
	return res.ToObject(e.vm), nil
}

// figureFromSpec accepts nothing, a list of traces, or {data: [...], layout: {...}}.
func (e *env) figureFromSpec(v goja.Value) *chart.Figure {
	f := chart.NewFigure()
	if isMissing(v) {
		return f
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		e.throw("go.Figure expects a list of traces or {data, layout}")
	}
	data := goja.Value(obj)
	var layout goja.Value
	if obj.ClassName() != "Array" {
		data = obj.Get("data")
		layout = obj.Get("layout")
	}
	if !isMissing(data) {
		traces := data.ToObject(e.vm)
		n := e.arrayLength(traces, "go.Figure data")
		for i := 0; i < n; i++ {
			t := e.traceFromValue(traces.Get(strconv.Itoa(i)))
			if err := f.AddTrace(t); err != nil {
				e.throw("go.Figure: %s", err.Error())
			}
		}
	}
	if !isMissing(layout) {
		if err := f.UpdateLayout(e.exportMap(layout, "layout")); err != nil {
			e.throw("go.Figure: %s", err.Error())
		}
	}
	return f
}

func (e *env) traceFromValue(v goja.Value) chart.Trace {
	if t, ok := e.getRef(v).(*chart.Trace); ok {
		return *t
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		e.throw("expected a trace, e.g. go.Bar({x: [...], y: [...]})")
	}
	kind := optString(obj, "type")
	if kind == "" {
		e.throw("trace object needs a type")
	}
	return e.traceFromSpec(kind, obj)
}

func (e *env) traceFromSpec(kind string, o *goja.Object) chart.Trace {
	t := chart.Trace{Name: optString(o, "name")}
	color := e.nestedString(o, "marker", "color")
	switch kind {
	case "bar":
		t.Type = chart.TraceBar
		t.X = e.optArray(o, "x")
		t.Y = e.optArray(o, "y")
		t.Orientation = optString(o, "orientation")
	case "scatter":
		mode := optString(o, "mode")
		fill := optString(o, "fill")
		switch {
		case fill != "" && fill != "none":
			t.Type = chart.TraceArea
		case mode == "markers":
			t.Type = chart.TraceScatter
		default:
			t.Type = chart.TraceLine
		}
		if lineColor := e.nestedString(o, "line", "color"); lineColor != "" {
			color = lineColor
		}
		t.X = e.optArray(o, "x")
		t.Y = e.optArray(o, "y")
	case "pie":
		t.Type = chart.TracePie
		for _, l := range e.optArray(o, "labels") {
			t.Labels = append(t.Labels, chart.Label(l))
		}
		t.Values = e.numbers(o.Get("values"), "pie values")
		t.Hole = optNumber(o, "hole", 0)
	case "histogram":
		t.Type = chart.TraceHistogram
		t.X = e.optArray(o, "x")
		t.NBins = int(optNumber(o, "nbinsx", 0))
	default:
		e.throw("unsupported trace type %q", kind)
	}
	t.Color = color
	if err := t.Validate(); err != nil {
		e.throw("%s", err.Error())
	}
	return t
}

func (e *env) optArray(o *goja.Object, key string) []any {
	v := o.Get(key)
	if isMissing(v) {
		return nil
	}
	return e.arrayValues(v, key)
}

func (e *env) nestedString(o *goja.Object, key, sub string) string {
	nested, ok := o.Get(key).(*goja.Object)
	if !ok {
		return ""
	}
	return optString(nested, sub)
}

func (e *env) newPlotlyExpress() *goja.Object {
	px := e.vm.NewObject()
	for _, kind := range []chart.TraceType{chart.TraceBar, chart.TraceLine, chart.TraceArea, chart.TraceScatter} {
		kind := kind
		e.mustSet(px, string(kind), func(call goja.FunctionCall) goja.Value {
			return e.newFigureObject(e.pxCartesian(kind, call))
		})
	}
	e.mustSet(px, "pie", func(call goja.FunctionCall) goja.Value {
		return e.newFigureObject(e.pxPie(call))
	})
	e.mustSet(px, "histogram", func(call goja.FunctionCall) goja.Value {
		return e.newFigureObject(e.pxHistogram(call))
	})
	return px
}

// pxData reads the first px argument: a frame or an array of records.
func (e *env) pxData(v goja.Value, what string) *dataset.Dataset {
	if ds, ok := e.getRef(v).(*dataset.Dataset); ok {
		return ds
	}
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Array" {
		return e.frameFromRecords(v)
	}
	e.throw("%s expects a data frame as first argument", what)
	return nil
}

func (e *env) column(ds *dataset.Dataset, name string) dataset.Column {
	c, ok := ds.Column(name)
	if !ok {
		e.throw("unknown column %q, available: %v", name, ds.ColumnNames())
	}
	return c
}

func axisLabel(labels *goja.Object, column string) string {
	if labels != nil {
		if l := optString(labels, column); l != "" {
			return l
		}
	}
	return column
}

func (e *env) pxCartesian(kind chart.TraceType, call goja.FunctionCall) *chart.Figure {
	what := "px." + string(kind)
	ds := e.pxData(call.Argument(0), what)
	o := e.options(call.Argument(1), what+" options")
	x := optString(o, "x")
	ys := e.stringList(o.Get("y"), "y")
	if x == "" || len(ys) == 0 {
		e.throw("%s requires x and y columns", what)
	}
	xs := e.column(ds, x)
	orientation := optString(o, "orientation")
	colorBy := optString(o, "color")

	f := chart.NewFigure()
	add := func(t chart.Trace) {
		t.Type = kind
		t.Orientation = orientation
		if err := f.AddTrace(t); err != nil {
			e.throw("%s: %s", what, err.Error())
		}
	}
	if colorBy != "" {
		groups := e.column(ds, colorBy)
		yc := e.column(ds, ys[0])
		order := []string{}
		byGroup := map[string]*chart.Trace{}
		for row := 0; row < ds.NumRows(); row++ {
			g := chart.Label(groups.Values[row])
			t, ok := byGroup[g]
			if !ok {
				t = &chart.Trace{Name: g, Color: chart.SegmentColors[g]}
				byGroup[g] = t
				order = append(order, g)
			}
			t.X = append(t.X, xs.Values[row])
			t.Y = append(t.Y, yc.Values[row])
		}
		for _, g := range order {
			add(*byGroup[g])
		}
	} else {
		for _, y := range ys {
			add(chart.Trace{Name: y, X: xs.Values, Y: e.column(ds, y).Values})
		}
	}

	labels, _ := o.Get("labels").(*goja.Object)
	f.Layout.Title = optString(o, "title")
	f.Layout.XAxis.Title = axisLabel(labels, x)
	if len(ys) == 1 {
		f.Layout.YAxis.Title = axisLabel(labels, ys[0])
	} else {
		f.Layout.YAxis.Title = "value"
	}
	f.Layout.BarMode = optString(o, "barmode")
	if f.Layout.BarMode == "" && kind == chart.TraceBar && (colorBy != "" || len(ys) > 1) {
		f.Layout.BarMode = "relative"
	}
	return f
}

func (e *env) pxPie(call goja.FunctionCall) *chart.Figure {
	ds := e.pxData(call.Argument(0), "px.pie")
	o := e.options(call.Argument(1), "px.pie options")
	names := optString(o, "names")
	values := optString(o, "values")
	if names == "" || values == "" {
		e.throw("px.pie requires names and values columns")
	}
	nc := e.column(ds, names)
	vc := e.column(ds, values)
	if vc.Type != dataset.TypeNumeric {
		e.throw("px.pie values column %q must be numeric", values)
	}

	t := chart.Trace{Type: chart.TracePie, Name: values, Hole: optNumber(o, "hole", 0)}
	index := map[string]int{}
	for row := range nc.Values {
		label := chart.Label(nc.Values[row])
		v, _ := vc.Values[row].(float64)
		i, ok := index[label]
		if !ok {
			index[label] = len(t.Labels)
			t.Labels = append(t.Labels, label)
			t.Values = append(t.Values, v)
			continue
		}
		t.Values[i] += v
	}
	f := chart.NewFigure()
	if err := f.AddTrace(t); err != nil {
		e.throw("px.pie: %s", err.Error())
	}
	f.Layout.Title = optString(o, "title")
	return f
}

func (e *env) pxHistogram(call goja.FunctionCall) *chart.Figure {
	ds := e.pxData(call.Argument(0), "px.histogram")
	o := e.options(call.Argument(1), "px.histogram options")
	x := optString(o, "x")
	if x == "" {
		e.throw("px.histogram requires an x column")
	}
	xc := e.column(ds, x)
	if xc.Type != dataset.TypeNumeric {
		e.throw("px.histogram column %q must be numeric", x)
	}
	f := chart.NewFigure()
	if err := f.AddTrace(chart.Trace{Type: chart.TraceHistogram, Name: x, X: xc.Values, NBins: int(optNumber(o, "nbins", 0))}); err != nil {
		e.throw("px.histogram: %s", err.Error())
	}
	labels, _ := o.Get("labels").(*goja.Object)
	f.Layout.Title = optString(o, "title")
	f.Layout.XAxis.Title = axisLabel(labels, x)
	f.Layout.YAxis.Title = "count"
	return f
}
