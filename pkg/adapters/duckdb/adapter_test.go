package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, cfg core.AdapterConfig) *Adapter {
	t.Helper()
	adp := New(nil)
	require.NoError(t, adp.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = adp.Close() })
	return adp
}

func TestAdapter_Connect(t *testing.T) {
	t.Run("in-memory", func(t *testing.T) {
		adp := connect(t, core.AdapterConfig{Path: ":memory:"})
		assert.True(t, adp.IsConnected())
	})

	t.Run("file-based", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "shop.duckdb")
		connect(t, core.AdapterConfig{Path: path})
		_, err := os.Stat(path)
		assert.NoError(t, err, "database file was not created")
	})

	t.Run("invalid params", func(t *testing.T) {
		err := New(nil).Connect(context.Background(), core.AdapterConfig{Params: map[string]any{"bogus": 1}})
		assert.Error(t, err)
	})
}

func TestAdapter_QueryTable(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, core.AdapterConfig{})

	require.NoError(t, adp.Exec(ctx, `CREATE TABLE orders (id INTEGER, customer VARCHAR, amount DOUBLE)`))
	require.NoError(t, adp.Exec(ctx, `INSERT INTO orders VALUES (1, 'ada', 10.5), (2, 'bob', 3.0), (3, 'ada', 7.25)`))

	tbl, err := adp.QueryTable(ctx, `SELECT * FROM orders WHERE customer = 'ada' ORDER BY id`)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "customer", "amount"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())

	id, err := tbl.Value(1, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id, "integers are normalized to int64")

	meta, err := adp.GetTableMetadata(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "main", meta.Schema)
	assert.Equal(t, int64(3), meta.RowCount)
	assert.Len(t, meta.Columns, 3)
}

func TestAdapter_LoadCSV(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, core.AdapterConfig{})

	csvPath := filepath.Join(t.TempDir(), "products.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("product_id,name\n1,keyboard\n2,mouse\n"), 0o600))

	require.NoError(t, adp.LoadCSV(ctx, "products", csvPath))
	tbl, err := adp.QueryTable(ctx, `SELECT name FROM products ORDER BY product_id`)
	require.NoError(t, err)
	names, err := tbl.Column("name")
	require.NoError(t, err)
	assert.Equal(t, []any{"keyboard", "mouse"}, names)
}

func TestAdapter_Settings(t *testing.T) {
	adp := connect(t, core.AdapterConfig{Params: map[string]any{
		"settings": map[string]any{"threads": "2"},
	}})
	tbl, err := adp.QueryTable(context.Background(), `SELECT current_setting('threads') AS threads`)
	require.NoError(t, err)
	v, err := tbl.Value(0, "threads")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestSetupStatements(t *testing.T) {
	stmts := setupStatements(&Params{
		Extensions: []string{"json"},
		Settings:   map[string]string{"threads": "4", "memory_limit": "1GB"},
	})
	assert.Equal(t, []string{
		"INSTALL json",
		"LOAD json",
		"SET memory_limit = '1GB'",
		"SET threads = '4'",
	}, stmts)
}

func TestRegistered(t *testing.T) {
	a, err := adapter.NewAdapter(core.AdapterConfig{Type: "duckdb"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", a.Dialect().Name)
}
