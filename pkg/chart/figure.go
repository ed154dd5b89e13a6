// Package chart holds the chart artifact produced by the sandbox: a small, serializable
// figure model (traces + layout) loosely shaped after plotly figures, plus the dashboard
// theme and an HTML renderer.
package chart

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type TraceType string

const (
	TraceBar       TraceType = "bar"
	TraceLine      TraceType = "line"
	TraceArea      TraceType = "area"
	TraceScatter   TraceType = "scatter"
	TracePie       TraceType = "pie"
	TraceHistogram TraceType = "histogram"
)

// Trace is one data series. Cartesian traces use X and Y, pie traces use Labels and
// Values, histograms bin X.
type Trace struct {
	Type   TraceType `json:"type"`
	Name   string    `json:"name,omitempty"`
	X      []any     `json:"x,omitempty"`
	Y      []any     `json:"y,omitempty"`
	Labels []string  `json:"labels,omitempty"`
	Values []float64 `json:"values,omitempty"`
	// Orientation is "v" (default) or "h" for horizontal bars.
	Orientation string  `json:"orientation,omitempty"`
	Color       string  `json:"color,omitempty"`
	Hole        float64 `json:"hole,omitempty"`
	NBins       int     `json:"nbins,omitempty"`
}

func (t Trace) Validate() error {
	switch t.Type {
	case TraceBar, TraceLine, TraceArea, TraceScatter:
		if len(t.X) != len(t.Y) {
			return errors.Errorf("%s trace %q has %d x values and %d y values", t.Type, t.Name, len(t.X), len(t.Y))
		}
	case TracePie:
		if len(t.Labels) != len(t.Values) {
			return errors.Errorf("pie trace %q has %d labels and %d values", t.Name, len(t.Labels), len(t.Values))
		}
	case TraceHistogram:
		if t.NBins < 0 || t.NBins > MaxBins {
			return errors.Errorf("histogram trace %q has %d bins, at most %d are allowed", t.Name, t.NBins, MaxBins)
		}
		for _, v := range t.X {
			if _, ok := v.(float64); !ok && v != nil {
				return errors.Errorf("histogram trace %q needs numeric values, got %T", t.Name, v)
			}
		}
	default:
		return errors.Errorf("unknown trace type %q", t.Type)
	}
	if t.Orientation != "" && t.Orientation != "v" && t.Orientation != "h" {
		return errors.Errorf("invalid orientation %q", t.Orientation)
	}
	return nil
}

type Font struct {
	Family string `json:"family,omitempty"`
	Size   int    `json:"size,omitempty"`
	Color  string `json:"color,omitempty"`
}

type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	T int `json:"t"`
	B int `json:"b"`
}

type Axis struct {
	Title     string `json:"title,omitempty"`
	GridColor string `json:"gridcolor,omitempty"`
	ZeroLine  bool   `json:"zeroline"`
	// TickFormat is passed through for the renderer, e.g. "%b %Y".
	TickFormat string `json:"tickformat,omitempty"`
}

type Layout struct {
	Title           string   `json:"title,omitempty"`
	TitleFont       Font     `json:"title_font"`
	Font            Font     `json:"font"`
	PlotBackground  string   `json:"plot_bgcolor,omitempty"`
	PaperBackground string   `json:"paper_bgcolor,omitempty"`
	Colorway        []string `json:"colorway,omitempty"`
	HoverMode       string   `json:"hovermode,omitempty"`
	BarMode         string   `json:"barmode,omitempty"`
	Margin          *Margin  `json:"margin,omitempty"`
	LegendFont      Font     `json:"legend_font"`
	ShowLegend      *bool    `json:"showlegend,omitempty"`
	Height          int      `json:"height,omitempty"`
	XAxis           Axis     `json:"xaxis"`
	YAxis           Axis     `json:"yaxis"`
}

// Figure is the chart artifact stored on an assistant turn.
type Figure struct {
	Traces []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

func NewFigure(traces ...Trace) *Figure {
	return &Figure{Traces: traces}
}

func (f *Figure) AddTrace(t Trace) error {
	if err := t.Validate(); err != nil {
		return err
	}
	f.Traces = append(f.Traces, t)
	return nil
}

func (f *Figure) Validate() error {
	for i, t := range f.Traces {
		if err := t.Validate(); err != nil {
			return errors.Wrapf(err, "trace %d", i)
		}
	}
	return nil
}

func (f *Figure) Title() string {
	return f.Layout.Title
}

// JSON returns the figure as indented JSON, e.g. for the turns API.
func (f *Figure) JSON() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// UpdateLayout applies plotly-style layout keys. Nested dicts (title, font, margin,
// legend, xaxis, yaxis) and the underscore shorthands (title_text, xaxis_title, ...) are
// understood. Unknown keys are ignored.
func (f *Figure) UpdateLayout(updates map[string]any) error {
	l := &f.Layout
	for k, v := range updates {
		var err error
		switch k {
		case "title", "title_text":
			err = applyTitle(l, v)
		case "title_font":
			err = applyFont(&l.TitleFont, v)
		case "font":
			err = applyFont(&l.Font, v)
		case "plot_bgcolor":
			l.PlotBackground, err = asString(k, v)
		case "paper_bgcolor":
			l.PaperBackground, err = asString(k, v)
		case "colorway":
			l.Colorway, err = asStrings(k, v)
		case "hovermode":
			if v == nil || v == false {
				l.HoverMode = ""
				continue
			}
			l.HoverMode, err = asString(k, v)
		case "barmode":
			l.BarMode, err = asString(k, v)
		case "height":
			var n float64
			n, err = asNumber(k, v)
			l.Height = int(n)
		case "showlegend":
			b, ok := v.(bool)
			if !ok {
				err = errors.Errorf("showlegend must be a boolean, got %T", v)
				break
			}
			l.ShowLegend = &b
		case "margin":
			err = applyMargin(l, v)
		case "legend":
			m, ok := v.(map[string]any)
			if !ok {
				err = errors.Errorf("legend must be an object, got %T", v)
				break
			}
			if font, ok := m["font"]; ok {
				err = applyFont(&l.LegendFont, font)
			}
		case "xaxis":
			err = applyAxis(&l.XAxis, v)
		case "yaxis":
			err = applyAxis(&l.YAxis, v)
		case "xaxis_title", "xaxis_title_text":
			l.XAxis.Title, err = titleText(v)
		case "yaxis_title", "yaxis_title_text":
			l.YAxis.Title, err = titleText(v)
		}
		if err != nil {
			return errors.Wrapf(err, "update_layout %s", k)
		}
	}
	return nil
}

func (f *Figure) UpdateXAxis(updates map[string]any) error {
	return errors.Wrap(applyAxis(&f.Layout.XAxis, updates), "update_xaxes")
}

func (f *Figure) UpdateYAxis(updates map[string]any) error {
	return errors.Wrap(applyAxis(&f.Layout.YAxis, updates), "update_yaxes")
}

func applyTitle(l *Layout, v any) error {
	switch tv := v.(type) {
	case nil:
		l.Title = ""
	case string:
		l.Title = tv
	case map[string]any:
		if text, ok := tv["text"]; ok {
			s, err := titleText(text)
			if err != nil {
				return err
			}
			l.Title = s
		}
		if font, ok := tv["font"]; ok {
			return applyFont(&l.TitleFont, font)
		}
	default:
		return errors.Errorf("title must be a string or object, got %T", v)
	}
	return nil
}

func titleText(v any) (string, error) {
	switch tv := v.(type) {
	case nil:
		return "", nil
	case string:
		return tv, nil
	case map[string]any:
		return titleText(tv["text"])
	}
	return "", errors.Errorf("title must be a string, got %T", v)
}

func applyFont(font *Font, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("font must be an object, got %T", v)
	}
	var err error
	if family, ok := m["family"]; ok {
		if font.Family, err = asString("family", family); err != nil {
			return err
		}
	}
	if color, ok := m["color"]; ok {
		if font.Color, err = asString("color", color); err != nil {
			return err
		}
	}
	if size, ok := m["size"]; ok {
		n, err := asNumber("size", size)
		if err != nil {
			return err
		}
		font.Size = int(n)
	}
	return nil
}

func applyMargin(l *Layout, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("margin must be an object, got %T", v)
	}
	margin := Margin{}
	if l.Margin != nil {
		margin = *l.Margin
	}
	for k, dst := range map[string]*int{"l": &margin.L, "r": &margin.R, "t": &margin.T, "b": &margin.B} {
		if raw, ok := m[k]; ok {
			n, err := asNumber(k, raw)
			if err != nil {
				return err
			}
			*dst = int(n)
		}
	}
	l.Margin = &margin
	return nil
}

func applyAxis(axis *Axis, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.Errorf("axis must be an object, got %T", v)
	}
	var err error
	for k, raw := range m {
		switch k {
		case "title", "title_text":
			axis.Title, err = titleText(raw)
		case "gridcolor":
			axis.GridColor, err = asString(k, raw)
		case "tickformat":
			axis.TickFormat, err = asString(k, raw)
		case "zeroline":
			b, ok := raw.(bool)
			if !ok {
				err = errors.Errorf("zeroline must be a boolean, got %T", raw)
			}
			axis.ZeroLine = b
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func asString(name string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("%s must be a string, got %T", name, v)
	}
	return s, nil
}

func asStrings(name string, v any) ([]string, error) {
	switch tv := v.(type) {
	case []string:
		return append([]string(nil), tv...), nil
	case []any:
		ret := make([]string, len(tv))
		for i, e := range tv {
			s, ok := e.(string)
			if !ok {
				return nil, errors.Errorf("%s[%d] must be a string, got %T", name, i, e)
			}
			ret[i] = s
		}
		return ret, nil
	}
	return nil, errors.Errorf("%s must be a list of strings, got %T", name, v)
}

func asNumber(name string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, errors.Errorf("%s must be a number, got %T", name, v)
}

// Label renders an axis value for category axes and tooltips.
func Label(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case float64:
		if tv == float64(int64(tv)) {
			return fmt.Sprintf("%d", int64(tv))
		}
		return fmt.Sprintf("%g", tv)
	case time.Time:
		if tv.Hour() == 0 && tv.Minute() == 0 && tv.Second() == 0 {
			return tv.Format("2006-01-02")
		}
		return tv.Format("2006-01-02 15:04")
	}
	return fmt.Sprint(v)
}
