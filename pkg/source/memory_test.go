package source

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersTable() *frame.Table {
	return frame.MustNew([]string{"order_id", "customer", "total"}, [][]any{
		{int64(1), "ada", 12.5},
		{int64(2), "bob", nil},
		{int64(3), "ada", 40.0},
	})
}

func TestMemory_Materialize(t *testing.T) {
	ctx := context.Background()
	src := NewMemory("orders", ordersTable())
	assert.Equal(t, "orders", src.Name())
	assert.Nil(t, src.RawView())

	all, err := src.Materialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Len())
	assert.Same(t, all, src.RawView())

	src.ApplyFilters([]core.FilterPredicate{{Column: "customer", Op: core.OpEq, Value: "ada"}})
	filtered, err := src.Materialize(ctx)
	require.NoError(t, err)
	ids, err := filtered.Column("order_id")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(3)}, ids)

	src.ApplyFilters(nil)
	again, err := src.Materialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Len())
}

func TestMemory_MaterializeUnknownColumn(t *testing.T) {
	src := NewMemory("orders", ordersTable())
	src.ApplyFilters([]core.FilterPredicate{{Column: "missing", Op: core.OpEq, Value: int64(1)}})
	_, err := src.Materialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source orders")
}

func TestMemory_OrderingNone(t *testing.T) {
	src := NewMemory("orders", ordersTable())
	src.ApplyFilters([]core.FilterPredicate{{Column: "total", Op: core.OpGt, Value: int64(20)}})
	_, err := src.Materialize(context.Background())
	assert.ErrorContains(t, err, "cannot order None")
}

func TestMemory_Equals(t *testing.T) {
	tbl := ordersTable()
	a := NewMemory("a", tbl)
	b := NewMemory("b", tbl)
	c := NewMemory("c", ordersTable())

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}

func TestNames(t *testing.T) {
	sources := []DataSource{NewMemory("orders", ordersTable()), NewMemory("products", ordersTable())}
	assert.Equal(t, []string{"orders", "products"}, Names(sources))
	assert.Empty(t, Names(nil))
}
