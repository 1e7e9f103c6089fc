package frame

import (
	"math"
	"testing"
	"time"

	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productsTable() *Table {
	return MustNew([]string{"product_id", "name", "price"}, [][]any{
		{1, "keyboard", 49.5},
		{2, "mouse", 19.0},
		{3, "monitor", 199.0},
	})
}

func detailsTable() *Table {
	return MustNew([]string{"order_id", "product_id", "quantity"}, [][]any{
		{10, 1, 2},
		{10, 2, 1},
		{11, 1, 1},
		{12, 3, 4},
		{13, 4, 1},
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    [][]any
		wantErr string
	}{
		{"valid", []string{"a", "b"}, [][]any{{1, "x"}}, ""},
		{"duplicate column", []string{"a", "a"}, nil, "duplicate column"},
		{"empty name", []string{""}, nil, "empty name"},
		{"short row", []string{"a", "b"}, [][]any{{1}}, "expected 2"},
		{"bad cell", []string{"a"}, [][]any{{struct{}{}}}, "unsupported cell type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.columns, tt.rows)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalizeCells(t *testing.T) {
	tbl := MustNew([]string{"i", "f", "b", "s"}, [][]any{{int32(7), float32(1.5), []byte("x"), "y"}})
	row := tbl.Row(0)
	assert.Equal(t, int64(7), row[0])
	assert.Equal(t, 1.5, row[1])
	assert.Equal(t, "x", row[2])
	assert.Equal(t, "y", row[3])
}

func TestWhere(t *testing.T) {
	tbl := productsTable()

	tests := []struct {
		name  string
		preds []core.FilterPredicate
		want  []any
	}{
		{"no predicates", nil, []any{"keyboard", "mouse", "monitor"}},
		{"equality", []core.FilterPredicate{{Column: "name", Op: core.OpEq, Value: "mouse"}}, []any{"mouse"}},
		{"numeric range", []core.FilterPredicate{{Column: "price", Op: core.OpGt, Value: int64(20)}, {Column: "price", Op: core.OpLte, Value: 199.0}}, []any{"keyboard", "monitor"}},
		{"in list", []core.FilterPredicate{{Column: "product_id", Op: core.OpIn, Value: []any{int64(1), int64(3)}}}, []any{"keyboard", "monitor"}},
		{"not in list", []core.FilterPredicate{{Column: "product_id", Op: core.OpNotIn, Value: []any{int64(1)}}}, []any{"mouse", "monitor"}},
		{"is not none", []core.FilterPredicate{{Column: "name", Op: core.OpIsNot, Value: nil}}, []any{"keyboard", "mouse", "monitor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tbl.Where(tt.preds)
			require.NoError(t, err)
			names, err := out.Column("name")
			require.NoError(t, err)
			assert.Equal(t, tt.want, names)
		})
	}

	_, err := tbl.Where([]core.FilterPredicate{{Column: "missing", Op: core.OpEq, Value: 1}})
	var colErr *ColumnError
	assert.ErrorAs(t, err, &colErr)
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pred    core.FilterPredicate
		cell    any
		want    bool
		wantErr string
	}{
		{name: "equal none", pred: core.FilterPredicate{Op: core.OpEq, Value: nil}, cell: nil, want: true},
		{name: "none is not equal", pred: core.FilterPredicate{Op: core.OpEq, Value: int64(2)}, cell: nil},
		{name: "none not equal", pred: core.FilterPredicate{Op: core.OpNeq, Value: int64(2)}, cell: nil, want: true},
		{name: "in with none", pred: core.FilterPredicate{Op: core.OpIn, Value: []any{int64(1), nil}}, cell: nil, want: true},
		{name: "int and float", pred: core.FilterPredicate{Op: core.OpGt, Value: 1.5}, cell: int64(2), want: true},
		{name: "ordering a none cell", pred: core.FilterPredicate{Op: core.OpGt, Value: int64(2)}, cell: nil, wantErr: "cannot order None with int64"},
		{name: "ordering against none", pred: core.FilterPredicate{Op: core.OpLte, Value: nil}, cell: int64(1), wantErr: "cannot order int64 with None"},
		{name: "ordering mixed types", pred: core.FilterPredicate{Op: core.OpLt, Value: "a"}, cell: int64(1), wantErr: "cannot compare int64 with string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.pred, tt.cell)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMerge(t *testing.T) {
	joined, err := Merge(detailsTable(), productsTable(), MergeOptions{On: []string{"product_id"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "product_id", "quantity", "name", "price"}, joined.Columns())
	assert.Equal(t, 4, joined.Len(), "product 4 has no match in an inner join")

	left, err := Merge(detailsTable(), productsTable(), MergeOptions{On: []string{"product_id"}, How: LeftJoin})
	require.NoError(t, err)
	assert.Equal(t, 5, left.Len())
	v, err := left.Value(4, "name")
	require.NoError(t, err)
	assert.Nil(t, v)

	suffixed, err := Merge(
		MustNew([]string{"id", "name"}, [][]any{{1, "a"}}),
		MustNew([]string{"id", "name"}, [][]any{{1, "b"}}),
		MergeOptions{On: []string{"id"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name_x", "name_y"}, suffixed.Columns())

	_, err = Merge(detailsTable(), productsTable(), MergeOptions{How: "cross"})
	assert.Error(t, err)
}

func TestConcat(t *testing.T) {
	a := MustNew([]string{"x"}, [][]any{{1}})
	b := MustNew([]string{"x", "y"}, [][]any{{2, "b"}})
	out, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, out.Columns())
	assert.Equal(t, []any{nil, "b"}, mustColumn(t, out, "y"))
}

func TestGroupBy(t *testing.T) {
	out, err := detailsTable().GroupBy([]string{"order_id"}, []Aggregation{
		{Column: "quantity", Func: AggSum, As: "units"},
		{Column: "product_id", Func: AggNUnique, As: "products"},
		{Func: AggSize},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "units", "products", "size"}, out.Columns())
	assert.Equal(t, []any{int64(10), int64(11), int64(12), int64(13)}, mustColumn(t, out, "order_id"))
	assert.Equal(t, []any{int64(3), int64(1), int64(4), int64(1)}, mustColumn(t, out, "units"))
	assert.Equal(t, []any{int64(2), int64(1), int64(1), int64(1)}, mustColumn(t, out, "products"))
}

func TestReduce(t *testing.T) {
	values := []any{int64(1), 2.5, nil, int64(3)}
	tests := []struct {
		fn   string
		want any
	}{
		{AggCount, int64(3)},
		{AggSize, int64(4)},
		{AggSum, 6.5},
		{AggMin, int64(1)},
		{AggMax, int64(3)},
		{AggFirst, int64(1)},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			got, err := Reduce(tt.fn, values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	mean, err := Reduce(AggMean, values)
	require.NoError(t, err)
	assert.InDelta(t, 6.5/3, mean, 1e-9)

	empty, err := Reduce(AggMean, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(empty.(float64)))

	_, err = Reduce("median", values)
	assert.Error(t, err)
}

func TestUniqueAndDuplicates(t *testing.T) {
	tbl := detailsTable()
	n, err := tbl.NUnique("order_id")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	dedup, err := tbl.DropDuplicates("order_id")
	require.NoError(t, err)
	assert.Equal(t, 4, dedup.Len())

	assert.True(t, Equal(int64(2), 2.0))
	assert.Equal(t, Key(int64(2)), Key(2.0))
	assert.False(t, Equal(nil, int64(0)))
}

func TestSortBy(t *testing.T) {
	out, err := productsTable().SortBy([]string{"price"}, true)
	require.NoError(t, err)
	assert.Equal(t, []any{"monitor", "keyboard", "mouse"}, mustColumn(t, out, "name"))
}

func TestCompareTimes(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	assert.Equal(t, -1, Compare(early, late))
	assert.Equal(t, -1, Compare(nil, early))
}

func mustColumn(t *testing.T, tbl *Table, col string) []any {
	t.Helper()
	values, err := tbl.Column(col)
	require.NoError(t, err)
	return values
}
