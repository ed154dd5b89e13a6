package sandbox

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dop251/goja"
	"github.com/go-go-golems/chartchat/pkg/dataset"
)

const (
	// maxArrayLength bounds the length of any array read from a script.
	maxArrayLength = 1 << 20
	// maxNesting bounds object and array nesting when exporting script values. Cyclic
	// values hit it too.
	maxNesting = 32
	// maxExportValues bounds the values visited by one export.
	maxExportValues = 1 << 20
	// maxCallStackSize bounds script recursion.
	maxCallStackSize = 1024
)

// hiddenRefKey stores a handle to a Go value on JS objects created by the bindings. The
// handle indexes env.refs so that scripts never see the Go value itself.
const hiddenRefKey = "__chartchat_ref"

// env is the state of a single execution.
type env struct {
	vm   *goja.Runtime
	refs []any
}

func newEnv() *env {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	return &env{vm: vm}
}

func (e *env) mustSet(o *goja.Object, key string, v any) {
	if err := o.Set(key, v); err != nil {
		panic(e.vm.NewGoError(fmt.Errorf("set %s: %w", key, err)))
	}
}

func (e *env) attachRef(o *goja.Object, ref any) {
	e.refs = append(e.refs, ref)
	_ = o.DefineDataProperty(hiddenRefKey, e.vm.ToValue(len(e.refs)-1),
		goja.FLAG_FALSE, // writable
		goja.FLAG_FALSE, // enumerable
		goja.FLAG_FALSE, // configurable
	)
}

func (e *env) getRef(v goja.Value) any {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	raw := obj.Get(hiddenRefKey)
	if raw == nil || goja.IsUndefined(raw) || goja.IsNull(raw) {
		return nil
	}
	i := raw.ToInteger()
	if i < 0 || int(i) >= len(e.refs) {
		return nil
	}
	return e.refs[i]
}

func (e *env) throw(format string, args ...any) {
	panic(e.vm.NewTypeError(append([]any{format}, args...)...))
}

func isMissing(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

// toGo converts a JS scalar to a dataset value. Numbers become float64, Dates become UTC
// times, NaN, null and undefined become nil.
func (e *env) toGo(v goja.Value) any {
	if isMissing(v) {
		return nil
	}
	switch x := v.Export().(type) {
	case int64:
		return float64(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case string:
		return x
	case bool:
		return x
	case time.Time:
		return x.UTC()
	case nil:
		return nil
	}
	e.throw("unsupported value %s, expected a number, string, boolean or Date", v.String())
	return nil
}

// toJS converts a dataset value for scripts. Times become Date objects.
func (e *env) toJS(v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case time.Time:
		d, err := e.vm.New(e.vm.Get("Date"), e.vm.ToValue(x.UnixMilli()))
		if err != nil {
			panic(err)
		}
		return d
	}
	return e.vm.ToValue(v)
}

// arrayValues reads a JS array (or array-like) into Go values.
func (e *env) arrayValues(v goja.Value, what string) []any {
	if isMissing(v) {
		e.throw("%s must be an array", what)
	}
	obj := v.ToObject(e.vm)
	if obj.ClassName() != "Array" {
		e.throw("%s must be an array, got %s", what, v.String())
	}
	n := e.arrayLength(obj, what)
	ret := make([]any, n)
	for i := 0; i < n; i++ {
		ret[i] = e.toGo(obj.Get(strconv.Itoa(i)))
	}
	return ret
}

// arrayLength returns the length of a script array, throwing when it is over
// maxArrayLength. Sparse arrays can claim any length without holding the elements.
func (e *env) arrayLength(obj *goja.Object, what string) int {
	n := obj.Get("length").ToInteger()
	if n < 0 || n > maxArrayLength {
		e.throw("%s has %d elements, at most %d are allowed", what, n, maxArrayLength)
	}
	return int(n)
}

func (e *env) stringList(v goja.Value, what string) []string {
	if isMissing(v) {
		return nil
	}
	if s, ok := v.Export().(string); ok {
		return []string{s}
	}
	values := e.arrayValues(v, what)
	ret := make([]string, len(values))
	for i, x := range values {
		s, ok := x.(string)
		if !ok {
			e.throw("%s must contain column names", what)
		}
		ret[i] = s
	}
	return ret
}

// options reads an optional plain-object argument. Values stay as goja values so that
// arrays and nested objects can be interpreted per key.
func (e *env) options(v goja.Value, what string) *goja.Object {
	if isMissing(v) {
		return e.vm.NewObject()
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		e.throw("%s must be an object", what)
	}
	return obj
}

func optString(o *goja.Object, key string) string {
	v := o.Get(key)
	if isMissing(v) {
		return ""
	}
	return v.String()
}

func optNumber(o *goja.Object, key string, def float64) float64 {
	v := o.Get(key)
	if isMissing(v) {
		return def
	}
	return v.ToFloat()
}

// exportMap converts a JS object into a plain map for layout updates. Nested objects
// become maps, arrays become slices, numbers float64.
func (e *env) exportMap(v goja.Value, what string) map[string]any {
	x := &exporter{e: e, what: what, left: maxExportValues}
	return x.object(e.options(v, what), 0)
}

// checkExportable throws unless v is within the nesting and size bounds of an export.
func (e *env) checkExportable(v goja.Value, what string) {
	x := &exporter{e: e, what: what, left: maxExportValues, check: true}
	x.value(v, 0)
}

// exporter walks a script value with bounded depth and size.
type exporter struct {
	e    *env
	what string
	left int
	// check only walks the value, scalars are not converted.
	check bool
}

func (x *exporter) value(v goja.Value, depth int) any {
	x.left--
	if x.left < 0 {
		x.e.throw("%s has more than %d values", x.what, maxExportValues)
	}
	if isMissing(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Array":
			x.enter(depth)
			ret := make([]any, x.e.arrayLength(obj, x.what))
			for i := range ret {
				ret[i] = x.value(obj.Get(strconv.Itoa(i)), depth+1)
			}
			return ret
		case "Object":
			return x.object(obj, depth)
		}
	}
	if x.check {
		return nil
	}
	return x.e.toGo(v)
}

func (x *exporter) object(obj *goja.Object, depth int) map[string]any {
	x.enter(depth)
	ret := map[string]any{}
	for _, k := range obj.Keys() {
		ret[k] = x.value(obj.Get(k), depth+1)
	}
	return ret
}

func (x *exporter) enter(depth int) {
	if depth >= maxNesting {
		x.e.throw("%s is nested too deeply or cyclic", x.what)
	}
}

func (e *env) requireFrame(v goja.Value, what string) *dataset.Dataset {
	ds, ok := e.getRef(v).(*dataset.Dataset)
	if !ok {
		e.throw("%s must be a data frame", what)
	}
	return ds
}
