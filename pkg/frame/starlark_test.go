package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

func execScript(t *testing.T, src string) starlark.StringDict {
	t.Helper()
	predeclared := starlark.StringDict{
		"frame":    Module,
		"details":  NewTableValue(detailsTable()),
		"products": NewTableValue(productsTable()),
	}
	thread := &starlark.Thread{Name: t.Name()}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, "test.star", src, predeclared)
	require.NoError(t, err)
	return globals
}

func TestTableValueScripts(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{
			name: "len and columns",
			src:  `result = [len(products), products.columns, products.shape]`,
			want: []any{int64(3), []any{"product_id", "name", "price"}, []any{int64(3), int64(3)}},
		},
		{
			name: "filter with lambda",
			src:  `result = products.filter(lambda r: r["price"] > 20).count()`,
			want: int64(2),
		},
		{
			name: "column reductions",
			src:  `result = [products["price"].max(), details["order_id"].nunique(), details["quantity"].sum()]`,
			want: []any{199.0, int64(4), int64(9)},
		},
		{
			name: "merge then distinct count",
			src: `joined = details.merge(products, on="product_id")
result = joined["name"].nunique()`,
			want: int64(3),
		},
		{
			name: "module merge and groupby agg",
			src: `joined = frame.merge(details, products, on="product_id")
g = joined.groupby("name").agg(units=("quantity", "sum"))
result = g.records()`,
			want: []any{
				map[string]any{"name": "keyboard", "units": int64(3)},
				map[string]any{"name": "monitor", "units": int64(4)},
				map[string]any{"name": "mouse", "units": int64(1)},
			},
		},
		{
			name: "dataframe from dict keeps column order",
			src: `t = frame.DataFrame({"z": [1, 2], "a": ["x", "y"]})
result = t.columns`,
			want: []any{"z", "a"},
		},
		{
			name: "concat skips None",
			src:  `result = len(frame.concat([products, None, products]))`,
			want: int64(6),
		},
		{
			name: "projection and iteration",
			src: `names = [r["name"] for r in products[["name"]]]
result = names`,
			want: []any{"keyboard", "mouse", "monitor"},
		},
		{
			name: "assign computed column",
			src: `t = details.assign("double", lambda r: r["quantity"] * 2)
result = t["double"].tolist()`,
			want: []any{int64(4), int64(2), int64(2), int64(8), int64(2)},
		},
		{
			name: "row get default",
			src:  `result = [r.get("missing", 0) for r in products.head(1)]`,
			want: []any{int64(0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			globals := execScript(t, tt.src)
			got, err := ToGo(globals["result"])
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTableValueErrors(t *testing.T) {
	predeclared := starlark.StringDict{"products": NewTableValue(productsTable())}
	thread := &starlark.Thread{Name: "errors"}

	_, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, "bad.star", `x = products["nope"]`, predeclared)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "nope" not found`)

	_, err = starlark.ExecFileOptions(&syntax.FileOptions{}, thread, "bad.star", `x = {products: 1}`, predeclared)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhashable")
}

func TestToGoTable(t *testing.T) {
	v, err := ToStarlark(productsTable())
	require.NoError(t, err)
	back, err := ToGo(v)
	require.NoError(t, err)
	tbl, ok := back.(*Table)
	require.True(t, ok)
	assert.True(t, tbl.Equal(productsTable()))
}
