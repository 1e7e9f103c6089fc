package source

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
)

// Memory is a DataSource over an in-memory table.
type Memory struct {
	name    string
	table   *frame.Table
	filters []core.FilterPredicate
	view    *frame.Table
}

// NewMemory wraps t as a source called name.
func NewMemory(name string, t *frame.Table) *Memory {
	return &Memory{name: name, table: t}
}

// Name implements DataSource.
func (m *Memory) Name() string { return m.name }

// ApplyFilters implements DataSource.
func (m *Memory) ApplyFilters(preds []core.FilterPredicate) {
	m.filters = append([]core.FilterPredicate(nil), preds...)
}

// Materialize implements DataSource.
func (m *Memory) Materialize(_ context.Context) (*frame.Table, error) {
	view, err := m.table.Where(m.filters)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", m.name, err)
	}
	m.view = view
	return view, nil
}

// RawView implements DataSource.
func (m *Memory) RawView() *frame.Table { return m.view }

// Equals implements DataSource. Memory sources share no connection, so only
// the same table is equal.
func (m *Memory) Equals(other DataSource) bool {
	o, ok := other.(*Memory)
	return ok && o.table == m.table
}
