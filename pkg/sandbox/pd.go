package sandbox

import (
	"math"
	"strconv"
	"time"

	"github.com/dop251/goja"
	"github.com/go-go-golems/chartchat/pkg/dataset"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01",
}

func (e *env) newPandas() *goja.Object {
	pd := e.vm.NewObject()

	e.mustSet(pd, "frame", func(call goja.FunctionCall) goja.Value {
		return e.newFrame(e.frameFromRecords(call.Argument(0)))
	})

	e.mustSet(pd, "toDate", func(call goja.FunctionCall) goja.Value {
		return e.toJS(e.requireTime(call.Argument(0), "toDate"))
	})

	e.mustSet(pd, "month", func(call goja.FunctionCall) goja.Value {
		return e.vm.ToValue(e.requireTime(call.Argument(0), "month").Format("2006-01"))
	})

	e.mustSet(pd, "year", func(call goja.FunctionCall) goja.Value {
		return e.vm.ToValue(e.requireTime(call.Argument(0), "year").Year())
	})

	// Monday is 0, as in pandas.
	e.mustSet(pd, "weekday", func(call goja.FunctionCall) goja.Value {
		wd := e.requireTime(call.Argument(0), "weekday").Weekday()
		return e.vm.ToValue((int(wd) + 6) % 7)
	})

	e.mustSet(pd, "sum", func(call goja.FunctionCall) goja.Value {
		s := 0.0
		for _, n := range e.numbers(call.Argument(0), "sum") {
			s += n
		}
		return e.vm.ToValue(s)
	})

	e.mustSet(pd, "mean", func(call goja.FunctionCall) goja.Value {
		nums := e.numbers(call.Argument(0), "mean")
		if len(nums) == 0 {
			return goja.NaN()
		}
		s := 0.0
		for _, n := range nums {
			s += n
		}
		return e.vm.ToValue(s / float64(len(nums)))
	})

	e.mustSet(pd, "round", func(call goja.FunctionCall) goja.Value {
		x := call.Argument(0).ToFloat()
		digits := 0
		if !isMissing(call.Argument(1)) {
			digits = int(call.Argument(1).ToInteger())
		}
		p := math.Pow(10, float64(digits))
		return e.vm.ToValue(math.Round(x*p) / p)
	})

	return pd
}

func (e *env) requireTime(v goja.Value, what string) time.Time {
	switch x := e.toGo(v).(type) {
	case time.Time:
		return x
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t
			}
		}
		e.throw("%s: cannot parse %q as a date", what, x)
	case float64:
		return time.UnixMilli(int64(x)).UTC()
	}
	e.throw("%s expects a Date or a date string", what)
	return time.Time{}
}

// numbers reads the non-missing numeric entries of an array.
func (e *env) numbers(v goja.Value, what string) []float64 {
	values := e.arrayValues(v, what)
	ret := make([]float64, 0, len(values))
	for _, x := range values {
		switch n := x.(type) {
		case float64:
			ret = append(ret, n)
		case nil:
		default:
			e.throw("%s expects numbers, got %v", what, x)
		}
	}
	return ret
}

// frameFromRecords builds a frame from an array of row objects. Columns follow the key
// order of the first record that introduces them.
func (e *env) frameFromRecords(v goja.Value) *dataset.Dataset {
	if isMissing(v) {
		e.throw("frame expects an array of records")
	}
	arr := v.ToObject(e.vm)
	if arr.ClassName() != "Array" {
		e.throw("frame expects an array of records")
	}
	n := e.arrayLength(arr, "frame records")
	var names []string
	seen := map[string]bool{}
	records := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		rec, ok := arr.Get(strconv.Itoa(i)).(*goja.Object)
		if !ok {
			e.throw("frame record %d is not an object", i)
		}
		m := map[string]any{}
		for _, k := range rec.Keys() {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
			m[k] = e.toGo(rec.Get(k))
		}
		records[i] = m
	}
	ds, err := dataset.FromRecords(names, records)
	if err != nil {
		e.throw("frame: %s", err.Error())
	}
	return ds
}
