package dataset

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

const (
	// SampleRows is the number of leading rows rendered at the end of a summary.
	SampleRows = 3
	// MaxListedValues caps the values listed for a low-cardinality text column.
	MaxListedValues = 8
	// MaxCardinalityForValues is the distinct count up to which text values are listed.
	MaxCardinalityForValues = 10
	// MaxCellWidth clips every rendered value so a summary grows with columns, not rows.
	MaxCellWidth = 40
)

// Summarize renders a bounded description of ds for inclusion in a model prompt: shape,
// one line per column with type, cardinality and value hints, then the first rows.
func Summarize(ds *Dataset, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DataFrame: `%s`\n", oneLine(name))
	fmt.Fprintf(&b, "Shape: %d rows x %d columns\n", ds.NumRows(), ds.NumColumns())
	b.WriteString("\nColumns (name → type):\n")
	if ds != nil {
		for _, c := range ds.columns {
			b.WriteString(describeColumn(c))
			b.WriteString("\n")
		}
	}
	b.WriteString("\nFirst 3 rows:\n")
	b.WriteString(renderHead(ds))
	return strings.TrimRight(b.String(), "\n")
}

func describeColumn(c Column) string {
	unique := distinct(c.Values)
	line := fmt.Sprintf("  - %s: %s (nunique=%d)", clip(oneLine(c.Name)), c.Type, len(unique))

	switch c.Type {
	case TypeText:
		if len(unique) <= MaxCardinalityForValues && len(unique) > 0 {
			n := len(unique)
			if n > MaxListedValues {
				n = MaxListedValues
			}
			quoted := make([]string, n)
			for i, v := range unique[:n] {
				quoted[i] = "'" + clip(oneLine(v.(string))) + "'"
			}
			line += " — values: [" + strings.Join(quoted, ", ") + "]"
		}
	case TypeNumeric, TypeTemporal:
		if len(unique) > 0 {
			lo, hi := unique[0], unique[0]
			for _, v := range unique[1:] {
				if Compare(v, lo) < 0 {
					lo = v
				}
				if Compare(v, hi) > 0 {
					hi = v
				}
			}
			line += fmt.Sprintf(" — range: [%s, %s]", FormatValue(lo), FormatValue(hi))
		}
	}
	return line
}

func renderHead(ds *Dataset) string {
	if ds == nil || ds.NumColumns() == 0 {
		return "Empty DataFrame\n"
	}
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	header := []string{""}
	for _, n := range ds.ColumnNames() {
		header = append(header, clip(oneLine(n)))
	}
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)

	head := ds.Head(SampleRows)
	for r := 0; r < head.NumRows(); r++ {
		row := []string{strconv.Itoa(r)}
		for _, c := range head.columns {
			row = append(row, clip(oneLine(FormatValue(c.Values[r]))))
		}
		table.Append(row)
	}
	table.Render()
	return buf.String()
}

// FormatValue renders a cell the way the summary and chart labels show it.
func FormatValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return "NaN"
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case time.Time:
		return tv.Format("2006-01-02 15:04:05")
	case bool:
		if tv {
			return "True"
		}
		return "False"
	case string:
		return tv
	}
	return fmt.Sprint(v)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= MaxCellWidth {
		return s
	}
	return string(r[:MaxCellWidth-3]) + "..."
}
