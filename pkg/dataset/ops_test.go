package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersFixture() *Dataset {
	d := func(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }
	return MustNew(
		Column{Name: "fecha", Type: TypeTemporal, Values: []any{d(3), d(1), d(2), d(1), nil}},
		Column{Name: "zona", Type: TypeText, Values: []any{"Centro", "Norte", "Centro", "Sur", nil}},
		Column{Name: "kg", Type: TypeNumeric, Values: []any{2, 1.5, 4, nil, 3}},
		Column{Name: "delivery", Type: TypeBool, Values: []any{true, false, true, true, false}},
	)
}

func TestNewValidatesColumns(t *testing.T) {
	_, err := New(Column{Name: "a", Type: TypeNumeric, Values: []any{1}}, Column{Name: "a", Type: TypeNumeric, Values: []any{2}})
	assert.Error(t, err)

	_, err = New(Column{Name: "a", Type: TypeNumeric, Values: []any{1, 2}}, Column{Name: "b", Type: TypeNumeric, Values: []any{1}})
	assert.Error(t, err)

	_, err = New(Column{Name: "", Type: TypeText})
	assert.Error(t, err)

	_, err = New(Column{Name: "a", Type: TypeNumeric, Values: []any{"uno"}})
	assert.Error(t, err)
}

func TestNewNormalizesNumbers(t *testing.T) {
	ds := ordersFixture()
	assert.Equal(t, 2.0, ds.Value(0, "kg"))
	assert.Nil(t, ds.Value(3, "kg"))
	assert.Nil(t, ds.Value(99, "kg"))
	assert.Nil(t, ds.Value(0, "nope"))
}

func TestColumnReturnsCopy(t *testing.T) {
	ds := ordersFixture()
	c, ok := ds.Column("zona")
	require.True(t, ok)
	c.Values[0] = "Oeste"
	assert.Equal(t, "Centro", ds.Value(0, "zona"))
}

func TestFilterAndHead(t *testing.T) {
	ds := ordersFixture()
	onlyDelivery := ds.Filter(func(row int) bool { return ds.Value(row, "delivery") == true })
	assert.Equal(t, 3, onlyDelivery.NumRows())
	assert.Equal(t, 4, ds.NumColumns())
	assert.Equal(t, 5, ds.NumRows())

	assert.Equal(t, 2, ds.Head(2).NumRows())
	assert.Equal(t, 5, ds.Head(50).NumRows())
	assert.Equal(t, 0, ds.Head(-1).NumRows())
}

func TestSortByPutsMissingLast(t *testing.T) {
	ds := ordersFixture()
	asc, err := ds.SortBy("kg", true)
	require.NoError(t, err)
	c, _ := asc.Column("kg")
	assert.Equal(t, []any{1.5, 2.0, 3.0, 4.0, nil}, c.Values)

	desc, err := ds.SortBy("kg", false)
	require.NoError(t, err)
	c, _ = desc.Column("kg")
	assert.Equal(t, []any{4.0, 3.0, 2.0, 1.5, nil}, c.Values)

	_, err = ds.SortBy("missing", true)
	assert.Error(t, err)
}

func TestGroupBySum(t *testing.T) {
	ds := ordersFixture()
	g, err := ds.GroupBy([]string{"zona"}, []Aggregation{
		{Column: "kg", Func: AggSum},
		{Column: "kg", Func: AggCount, As: "pedidos"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"zona", "kg", "pedidos"}, g.ColumnNames())

	zonas, _ := g.Column("zona")
	assert.Equal(t, []any{"Centro", "Norte", "Sur"}, zonas.Values)
	kg, _ := g.Column("kg")
	assert.Equal(t, []any{6.0, 1.5, 0.0}, kg.Values)
	pedidos, _ := g.Column("pedidos")
	assert.Equal(t, []any{2.0, 1.0, 0.0}, pedidos.Values)
}

func TestGroupByTemporalKeyAndStats(t *testing.T) {
	ds := ordersFixture()
	g, err := ds.GroupBy([]string{"fecha"}, []Aggregation{
		{Column: "kg", Func: AggMean},
		{Column: "zona", Func: AggNUnique, As: "zonas"},
		{Column: "zona", Func: AggFirst, As: "primera"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, g.NumRows())
	typ, _ := g.ColumnType("fecha")
	assert.Equal(t, TypeTemporal, typ)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), g.Value(0, "fecha"))
	assert.Equal(t, 1.5, g.Value(0, "kg"))
	assert.Equal(t, 2.0, g.Value(0, "zonas"))
	assert.Equal(t, "Norte", g.Value(0, "primera"))
}

func TestGroupByRejectsBadAggregations(t *testing.T) {
	ds := ordersFixture()
	_, err := ds.GroupBy([]string{"zona"}, []Aggregation{{Column: "fecha", Func: AggSum}})
	assert.Error(t, err)
	_, err = ds.GroupBy([]string{"zona"}, []Aggregation{{Column: "kg", Func: "mode"}})
	assert.Error(t, err)
	_, err = ds.GroupBy(nil, nil)
	assert.Error(t, err)
	_, err = ds.GroupBy([]string{"nope"}, nil)
	assert.Error(t, err)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.5, applyAgg(AggMedian, []any{4.0, 1.0, 2.0, 3.0}))
	assert.Equal(t, 2.0, applyAgg(AggMedian, []any{3.0, nil, 1.0, 2.0}))
	assert.Nil(t, applyAgg(AggMedian, []any{nil}))
}

func TestSelectAndWithColumn(t *testing.T) {
	ds := ordersFixture()
	sel, err := ds.Select("kg", "zona")
	require.NoError(t, err)
	assert.Equal(t, []string{"kg", "zona"}, sel.ColumnNames())

	_, err = ds.Select("kg", "nope")
	assert.Error(t, err)

	added, err := ds.WithColumn(Column{Name: "mes", Type: TypeText, Values: []any{"03", "03", "03", "03", nil}})
	require.NoError(t, err)
	assert.Equal(t, 5, added.NumColumns())
	assert.Equal(t, 4, ds.NumColumns())

	replaced, err := ds.WithColumn(Column{Name: "kg", Type: TypeNumeric, Values: []any{1, 1, 1, 1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"fecha", "zona", "kg", "delivery"}, replaced.ColumnNames())
	assert.Equal(t, 1.0, replaced.Value(3, "kg"))

	_, err = ds.WithColumn(Column{Name: "x", Type: TypeNumeric, Values: []any{1}})
	assert.Error(t, err)
}

func TestUnique(t *testing.T) {
	u, err := ordersFixture().Unique("zona")
	require.NoError(t, err)
	assert.Equal(t, []any{"Centro", "Norte", "Sur"}, u)
}

func TestFromRecords(t *testing.T) {
	ds, err := FromRecords([]string{"mes", "venta"}, []map[string]any{
		{"mes": "2024-01", "venta": 10},
		{"mes": "2024-02"},
	})
	require.NoError(t, err)
	typ, _ := ds.ColumnType("venta")
	assert.Equal(t, TypeNumeric, typ)
	assert.Nil(t, ds.Value(1, "venta"))

	_, err = FromRecords([]string{"x"}, []map[string]any{{"x": 1}, {"x": "uno"}})
	assert.Error(t, err)
}
