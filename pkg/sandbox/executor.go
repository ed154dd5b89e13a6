// Package sandbox runs model-generated chart code in an embedded JavaScript runtime.
//
// Each execution gets a fresh goja runtime whose global namespace holds only the chart
// API: the page data as df, the pd/px/go helper namespaces, styled_fig and the color
// constants. Nothing reaches the filesystem, the network, timers or the console. The
// script is expected to assign a figure to the global fig.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/go-go-golems/chartchat/pkg/chart"
	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single execution.
const DefaultTimeout = 10 * time.Second

// OutputVariable is the global the script assigns its figure to.
const OutputVariable = "fig"

// ErrNoChart is reported by callers when the script assigned no figure.
var ErrNoChart = errors.New("no chart produced")

var errNotCallable = errors.New("factory did not evaluate to a function")

// ChartResult is the outcome of a run that did not throw.
type ChartResult struct {
	// Present is true when the script assigned the output variable.
	Present bool
	// Chart is set when the output variable holds a figure.
	Chart *chart.Figure
	// Value is the exported output value when it is not a figure.
	Value any
}

// ExecutionError is a script failure: a thrown exception, a syntax error, an API misuse
// or an interrupt. Message is the exception text.
type ExecutionError struct {
	Message     string
	Interrupted bool
}

func (e *ExecutionError) Error() string {
	return e.Message
}

type Executor struct {
	timeout time.Duration
}

type ExecutorOption func(*Executor)

func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

func NewExecutor(options ...ExecutorOption) *Executor {
	ret := &Executor{timeout: DefaultTimeout}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Execute runs code against ds. ds is never modified.
func (x *Executor) Execute(ctx context.Context, code string, ds *dataset.Dataset) (result ChartResult, err error) {
	if err := ctx.Err(); err != nil {
		return ChartResult{}, err
	}
	if ds == nil {
		ds = dataset.MustNew()
	}
	start := time.Now()
	e := newEnv()

	defer func() {
		if r := recover(); r != nil {
			result = ChartResult{}
			err = panicError(r)
		}
	}()

	if err := e.install(ds); err != nil {
		return ChartResult{}, errors.Wrap(err, "setting up chart runtime")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		var timeout <-chan time.Time
		if x.timeout > 0 {
			timer := time.NewTimer(x.timeout)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-timeout:
			e.vm.Interrupt(errors.Errorf("execution timed out after %s", x.timeout))
		case <-done:
		}
	}()

	if _, err := e.vm.RunString(code); err != nil {
		log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("chart code failed")
		return ChartResult{}, scriptError(err)
	}
	v, err := e.vm.RunString("(typeof " + OutputVariable + " === 'undefined') ? undefined : " + OutputVariable)
	if err != nil {
		return ChartResult{}, scriptError(err)
	}

	result = e.result(v)
	log.Debug().
		Bool("present", result.Present).
		Bool("chart", result.Chart != nil).
		Dur("elapsed", time.Since(start)).
		Msg("chart code executed")
	return result, nil
}

func (e *env) install(ds *dataset.Dataset) error {
	global := e.vm.GlobalObject()
	e.mustSet(global, "df", e.newFrame(ds))
	e.mustSet(global, "pd", e.newPandas())
	e.mustSet(global, "px", e.newPlotlyExpress())
	goNS, err := e.newGraphObjects()
	if err != nil {
		return err
	}
	e.mustSet(global, "go", goNS)

	e.mustSet(global, "styled_fig", func(call goja.FunctionCall) goja.Value {
		f := e.requireFigure(call.Argument(0), "styled_fig argument")
		title := ""
		if !isMissing(call.Argument(1)) {
			title = call.Argument(1).String()
		}
		chart.Style(f, title)
		return call.Argument(0)
	})

	colors := make([]any, len(chart.Palette))
	for i, c := range chart.Palette {
		colors[i] = c
	}
	e.mustSet(global, "COLORS", e.vm.NewArray(colors...))
	for name, value := range chart.ScriptConstants() {
		e.mustSet(global, name, value)
	}
	return nil
}

func (e *env) result(v goja.Value) ChartResult {
	if v == nil || goja.IsUndefined(v) {
		return ChartResult{}
	}
	if f, ok := e.getRef(v).(*chart.Figure); ok {
		return ChartResult{Present: true, Chart: f}
	}
	if goja.IsNull(v) {
		return ChartResult{Present: true}
	}
	e.checkExportable(v, OutputVariable)
	return ChartResult{Present: true, Value: v.Export()}
}

func scriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		msg := fmt.Sprint(interrupted.Value())
		if cause, ok := interrupted.Value().(error); ok {
			msg = cause.Error()
		}
		return &ExecutionError{Message: msg, Interrupted: true}
	}
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return &ExecutionError{Message: "RangeError: Maximum call stack size exceeded"}
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		if val := exception.Value(); val != nil {
			return &ExecutionError{Message: val.String()}
		}
		return &ExecutionError{Message: exception.Error()}
	}
	return &ExecutionError{Message: err.Error()}
}

func panicError(r any) error {
	switch x := r.(type) {
	case error:
		if _, ok := x.(*ExecutionError); ok {
			return x
		}
		return scriptError(x)
	case *goja.Object:
		return &ExecutionError{Message: x.String()}
	}
	return &ExecutionError{Message: fmt.Sprint(r)}
}
