// Package source defines the data sources generated code computes over.
//
// A DataSource is owned by the caller; the engine only borrows it for one
// execution. Filters applied with ApplyFilters narrow the next Materialize and
// are an optimization only.
package source

import (
	"context"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
)

// DataSource is a named tabular source.
type DataSource interface {
	// Name is the identifier used in prompts and SQL authorization.
	Name() string

	// Materialize loads the source, honoring the filters last applied.
	Materialize(ctx context.Context) (*frame.Table, error)

	// ApplyFilters replaces the pushdown predicates for the next Materialize.
	ApplyFilters(preds []core.FilterPredicate)

	// RawView returns the most recently materialized table, or nil.
	RawView() *frame.Table

	// Equals reports whether other reads from the same connection.
	Equals(other DataSource) bool
}

// SQLSource is a DataSource backed by a SQL connection. Direct-SQL mode
// requires every configured source to be one.
type SQLSource interface {
	DataSource

	// Kind is the adapter type, e.g. "postgres".
	Kind() string

	// TableName is the table the source reads.
	TableName() string

	// QueryTable runs sql on the source's connection.
	QueryTable(ctx context.Context, sql string) (*frame.Table, error)

	// Metadata describes the table's columns.
	Metadata(ctx context.Context) (*core.TableMetadata, error)

	// Dialect is the SQL dialect of the connection.
	Dialect() *adapter.Dialect
}

// Names returns the names of sources in order.
func Names(sources []DataSource) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Name()
	}
	return out
}

// Authorized returns the table names SQL may reference in direct-SQL mode:
// every source name, plus the table name of SQL sources whose table differs.
func Authorized(sources []DataSource) []string {
	out := Names(sources)
	for _, s := range sources {
		if sql, ok := s.(SQLSource); ok && !strings.EqualFold(sql.TableName(), s.Name()) {
			out = append(out, sql.TableName())
		}
	}
	return out
}
