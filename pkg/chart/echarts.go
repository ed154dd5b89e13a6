package chart

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"
)

// DefaultHeight is the rendered chart height in pixels when the layout sets none.
const DefaultHeight = 420

// DefaultBins is the histogram bin count when a trace sets none.
const DefaultBins = 10

// MaxBins bounds the histogram bin count.
const MaxBins = 1000

type renderer interface {
	Render(w io.Writer) error
}

// RenderHTML writes a standalone HTML page showing f with ECharts.
func RenderHTML(w io.Writer, f *Figure) error {
	if f == nil || len(f.Traces) == 0 {
		return errors.New("figure has no traces")
	}
	if err := f.Validate(); err != nil {
		return err
	}
	r, err := build(f)
	if err != nil {
		return err
	}
	return r.Render(w)
}

func build(f *Figure) (renderer, error) {
	for _, t := range f.Traces {
		if t.Type == TracePie {
			return buildPie(f), nil
		}
	}
	for _, t := range f.Traces {
		if t.Type == TraceHistogram {
			return buildHistogram(f), nil
		}
	}
	if allNumericScatter(f.Traces) {
		return buildScatter(f), nil
	}
	return buildCartesian(f), nil
}

func globalOptions(f *Figure, tooltipTrigger string) []charts.GlobalOpts {
	l := f.Layout
	height := l.Height
	if height <= 0 {
		height = DefaultHeight
	}
	pageTitle := l.Title
	if pageTitle == "" {
		pageTitle = "chart"
	}
	ret := []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       pageTitle,
			Width:           "100%",
			Height:          fmt.Sprintf("%dpx", height),
			BackgroundColor: l.PaperBackground,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: tooltipTrigger}),
	}
	if len(l.Colorway) > 0 {
		ret = append(ret, charts.WithColorsOpts(opts.Colors(l.Colorway)))
	}
	if l.Title != "" {
		ret = append(ret, charts.WithTitleOpts(opts.Title{
			Title: l.Title,
			TitleStyle: &opts.TextStyle{
				Color:      l.TitleFont.Color,
				FontSize:   l.TitleFont.Size,
				FontFamily: l.TitleFont.Family,
			},
		}))
	}
	if l.Margin != nil {
		ret = append(ret, charts.WithGridOpts(opts.Grid{
			Left:   strconv.Itoa(l.Margin.L),
			Right:  strconv.Itoa(l.Margin.R),
			Top:    strconv.Itoa(l.Margin.T),
			Bottom: strconv.Itoa(l.Margin.B),
		}))
	}
	return ret
}

func axisTrigger(l Layout) string {
	if strings.HasPrefix(l.HoverMode, "x") || l.HoverMode == "" {
		return "axis"
	}
	return "item"
}

func buildPie(f *Figure) renderer {
	pie := charts.NewPie()
	pie.SetGlobalOptions(globalOptions(f, "item")...)
	for _, t := range f.Traces {
		if t.Type != TracePie {
			continue
		}
		data := make([]opts.PieData, len(t.Labels))
		for i, label := range t.Labels {
			data[i] = opts.PieData{Name: label, Value: t.Values[i]}
		}
		radius := []string{"0%", "70%"}
		if t.Hole > 0 && t.Hole < 1 {
			radius[0] = fmt.Sprintf("%d%%", int(t.Hole*70))
		}
		pie.AddSeries(t.Name, data, charts.WithPieChartOpts(opts.PieChart{Radius: radius}))
	}
	return pie
}

func buildHistogram(f *Figure) renderer {
	bar := charts.NewBar()
	bar.SetGlobalOptions(append(globalOptions(f, axisTrigger(f.Layout)), axisNames(f.Layout)...)...)
	var categories []string
	for i, t := range f.Traces {
		if t.Type != TraceHistogram {
			continue
		}
		labels, counts := Histogram(t.X, t.NBins)
		if categories == nil {
			categories = labels
			bar.SetXAxis(categories)
		}
		data := make([]opts.BarData, len(counts))
		for j, c := range counts {
			data[j] = opts.BarData{Value: c}
		}
		bar.AddSeries(seriesName(t, i), data, seriesColor(t)...)
	}
	return bar
}

// Histogram bins numeric values into equal-width bins over their range. Missing values
// are skipped.
func Histogram(values []any, bins int) ([]string, []int) {
	if bins <= 0 {
		bins = DefaultBins
	}
	if bins > MaxBins {
		bins = MaxBins
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		n, ok := v.(float64)
		if !ok {
			continue
		}
		nums = append(nums, n)
		lo = math.Min(lo, n)
		hi = math.Max(hi, n)
	}
	if len(nums) == 0 {
		return []string{}, []int{}
	}
	if hi == lo {
		return []string{Label(lo)}, []int{len(nums)}
	}
	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, n := range nums {
		i := int((n - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}
	labels := make([]string, bins)
	for i := range labels {
		from := lo + float64(i)*width
		labels[i] = fmt.Sprintf("%s-%s", Label(round2(from)), Label(round2(from+width)))
	}
	return labels, counts
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func allNumericScatter(traces []Trace) bool {
	for _, t := range traces {
		if t.Type != TraceScatter {
			return false
		}
		for _, x := range t.X {
			if _, ok := x.(float64); !ok && x != nil {
				return false
			}
		}
	}
	return true
}

func buildScatter(f *Figure) renderer {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(append(globalOptions(f, "item"),
		charts.WithXAxisOpts(opts.XAxis{Name: f.Layout.XAxis.Title, Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: f.Layout.YAxis.Title, Type: "value"}),
	)...)
	for i, t := range f.Traces {
		data := make([]opts.ScatterData, 0, len(t.X))
		for j, x := range t.X {
			if x == nil || t.Y[j] == nil {
				continue
			}
			data = append(data, opts.ScatterData{Value: []interface{}{x, t.Y[j]}})
		}
		scatter.AddSeries(seriesName(t, i), data, seriesColor(t)...)
	}
	return scatter
}

// buildCartesian renders bars, lines and areas on a shared category axis. Bars form the
// base chart when present and line-like traces are overlapped onto it.
func buildCartesian(f *Figure) renderer {
	horizontal := true
	hasBars := false
	for _, t := range f.Traces {
		if t.Type == TraceBar {
			hasBars = true
			if t.Orientation != "h" {
				horizontal = false
			}
		} else {
			horizontal = false
		}
	}

	categoryOf := func(t Trace) ([]any, []any) {
		if horizontal {
			return t.Y, t.X
		}
		return t.X, t.Y
	}

	var categories []string
	seen := map[string]int{}
	for _, t := range f.Traces {
		cats, _ := categoryOf(t)
		for _, c := range cats {
			label := Label(c)
			if _, ok := seen[label]; !ok {
				seen[label] = len(categories)
				categories = append(categories, label)
			}
		}
	}
	aligned := func(t Trace) []any {
		cats, values := categoryOf(t)
		ret := make([]any, len(categories))
		for i := range ret {
			ret[i] = "-"
		}
		for i, c := range cats {
			if v := values[i]; v != nil {
				ret[seen[Label(c)]] = v
			}
		}
		return ret
	}

	global := append(globalOptions(f, axisTrigger(f.Layout)), axisNames(f.Layout)...)
	line := charts.NewLine()
	line.SetXAxis(categories)
	lines := 0
	for i, t := range f.Traces {
		if t.Type == TraceBar {
			continue
		}
		values := aligned(t)
		data := make([]opts.LineData, len(values))
		for j, v := range values {
			data[j] = opts.LineData{Value: v}
		}
		line.AddSeries(seriesName(t, i), data, seriesColor(t)...)
		lines++
	}
	if !hasBars {
		line.SetGlobalOptions(global...)
		return line
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(global...)
	bar.SetXAxis(categories)
	for i, t := range f.Traces {
		if t.Type != TraceBar {
			continue
		}
		values := aligned(t)
		data := make([]opts.BarData, len(values))
		for j, v := range values {
			data[j] = opts.BarData{Value: v}
		}
		seriesOpts := seriesColor(t)
		if f.Layout.BarMode == "stack" || f.Layout.BarMode == "relative" {
			seriesOpts = append(seriesOpts, charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
		}
		bar.AddSeries(seriesName(t, i), data, seriesOpts...)
	}
	if horizontal {
		bar.XYReversal()
	}
	if lines > 0 {
		bar.Overlap(line)
	}
	return bar
}

func axisNames(l Layout) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithXAxisOpts(opts.XAxis{Name: l.XAxis.Title}),
		charts.WithYAxisOpts(opts.YAxis{Name: l.YAxis.Title}),
	}
}

func seriesName(t Trace, i int) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("trace %d", i)
}

func seriesColor(t Trace) []charts.SeriesOpts {
	if t.Color == "" {
		return nil
	}
	return []charts.SeriesOpts{charts.WithItemStyleOpts(opts.ItemStyle{Color: t.Color})}
}
