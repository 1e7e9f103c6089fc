package testutil

import (
	"context"
	"sync"

	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
	"github.com/leapstack-labs/leapask/pkg/source"
)

// Orders is the orders fixture: order_id, customer, status.
func Orders() *frame.Table {
	return frame.MustNew([]string{"order_id", "customer", "status"}, [][]any{
		{int64(1), "ada", "shipped"},
		{int64(2), "bob", "open"},
		{int64(3), "ada", "shipped"},
		{int64(4), "cy", "cancelled"},
		{int64(5), "dee", "shipped"},
	})
}

// OrderDetails is the order_details fixture: order_id, product_id, quantity.
func OrderDetails() *frame.Table {
	return frame.MustNew([]string{"order_id", "product_id", "quantity"}, [][]any{
		{int64(1), int64(10), int64(2)},
		{int64(1), int64(11), int64(1)},
		{int64(2), int64(10), int64(5)},
		{int64(3), int64(12), int64(1)},
		{int64(5), int64(10), int64(3)},
	})
}

// Products is the products fixture: product_id, name, price.
func Products() *frame.Table {
	return frame.MustNew([]string{"product_id", "name", "price"}, [][]any{
		{int64(10), "widget", 2.5},
		{int64(11), "gadget", 10.0},
		{int64(12), "doohickey", 7.25},
	})
}

// CountingSource wraps a DataSource and records how it is used.
type CountingSource struct {
	source.DataSource

	mu           sync.Mutex
	materialized int
	filters      [][]core.FilterPredicate
}

// Count wraps s.
func Count(s source.DataSource) *CountingSource {
	return &CountingSource{DataSource: s}
}

// Materialize implements source.DataSource.
func (c *CountingSource) Materialize(ctx context.Context) (*frame.Table, error) {
	c.mu.Lock()
	c.materialized++
	c.mu.Unlock()
	return c.DataSource.Materialize(ctx)
}

// ApplyFilters implements source.DataSource.
func (c *CountingSource) ApplyFilters(preds []core.FilterPredicate) {
	c.mu.Lock()
	c.filters = append(c.filters, preds)
	c.mu.Unlock()
	c.DataSource.ApplyFilters(preds)
}

// Materialized returns how many times Materialize was called.
func (c *CountingSource) Materialized() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.materialized
}

// Filters returns every predicate list passed to ApplyFilters, in order.
func (c *CountingSource) Filters() [][]core.FilterPredicate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]core.FilterPredicate(nil), c.filters...)
}

// SalesSources returns the orders, order_details and products fixtures as
// counting in-memory sources, in that order.
func SalesSources() []*CountingSource {
	return []*CountingSource{
		Count(source.NewMemory("orders", Orders())),
		Count(source.NewMemory("order_details", OrderDetails())),
		Count(source.NewMemory("products", Products())),
	}
}

// DataSources converts counting sources to the interface slice the engine takes.
func DataSources(sources []*CountingSource) []source.DataSource {
	out := make([]source.DataSource, len(sources))
	for i, s := range sources {
		out[i] = s
	}
	return out
}
