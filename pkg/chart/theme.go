package chart

// Brand colors.
const (
	Teal          = "#5ec6c9"
	TealDark      = "#02777d"
	TealHover     = "#4cbdc1"
	DarkBlue      = "#467999"
	DarkBlueLight = "#478cb8"
	SageGreen     = "#6a961f"
	Charcoal      = "#3a3a3a"
	CharcoalLight = "#5a5a5a"
	LightGray     = "#f5f5f5"
	White         = "#ffffff"
	Red           = "#e74c3c"
	Orange        = "#f39c12"

	GridColor = "#f0f0f0"
)

// Palette is the default trace color sequence.
var Palette = []string{
	Teal, DarkBlue, SageGreen, TealDark, DarkBlueLight,
	CharcoalLight, "#e8a87c", "#d5c4a1", "#85dcba", Orange,
}

// SegmentColors maps RFM customer segments to their fixed colors.
var SegmentColors = map[string]string{
	"VIP":         TealDark,
	"Leal":        Teal,
	"Potencial":   DarkBlueLight,
	"Nuevo":       SageGreen,
	"Ocasional":   CharcoalLight,
	"En riesgo":   Orange,
	"Dormido":     "#d5c4a1",
	"Perdido":     Red,
	"Sin compras": LightGray,
}

// ScriptConstants are the color names exposed to chart code.
func ScriptConstants() map[string]string {
	return map[string]string{
		"TEAL":       Teal,
		"DARK_BLUE":  DarkBlue,
		"SAGE_GREEN": SageGreen,
		"RED":        Red,
		"ORANGE":     Orange,
		"TEAL_DARK":  TealDark,
		"WHITE":      White,
	}
}

// Style applies the dashboard theme to f in place and returns it. An empty title keeps
// the current one; untitled figures get a tighter top margin.
func Style(f *Figure, title string) *Figure {
	l := &f.Layout
	l.Font = Font{Family: "Lato, sans-serif", Color: Charcoal}
	if title != "" {
		l.Title = title
	}
	top := 20
	if l.Title != "" {
		l.TitleFont = Font{Family: "Oxygen, sans-serif", Size: 18, Color: DarkBlue}
		top = 50
	}
	l.PlotBackground = White
	l.PaperBackground = White
	l.Colorway = append([]string(nil), Palette...)
	l.HoverMode = "x unified"
	l.Margin = &Margin{L: 40, R: 20, T: top, B: 40}
	l.LegendFont = Font{Size: 11}
	for _, axis := range []*Axis{&l.XAxis, &l.YAxis} {
		axis.GridColor = GridColor
		axis.ZeroLine = false
	}
	return f
}

// ColorAt returns the palette color for the i-th trace.
func (l Layout) ColorAt(i int) string {
	colors := l.Colorway
	if len(colors) == 0 {
		colors = Palette
	}
	return colors[i%len(colors)]
}
