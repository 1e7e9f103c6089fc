package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/adapter"
	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
)

// SQL is a DataSource reading one table through an adapter.
type SQL struct {
	name    string
	table   string
	adp     adapter.Adapter
	filters []core.FilterPredicate
	view    *frame.Table
	logger  *slog.Logger

	meta    *core.TableMetadata
	metaErr error
}

// NewSQL creates a source called name over table. An empty table defaults to name.
func NewSQL(name, table string, adp adapter.Adapter, logger *slog.Logger) *SQL {
	if table == "" {
		table = name
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQL{name: name, table: table, adp: adp, logger: logger}
}

var _ SQLSource = (*SQL)(nil)

// Name implements DataSource.
func (s *SQL) Name() string { return s.name }

// Kind implements SQLSource.
func (s *SQL) Kind() string { return s.adp.Dialect().Name }

// Dialect implements SQLSource.
func (s *SQL) Dialect() *adapter.Dialect { return s.adp.Dialect() }

// TableName implements SQLSource.
func (s *SQL) TableName() string { return s.table }

// ApplyFilters implements DataSource.
func (s *SQL) ApplyFilters(preds []core.FilterPredicate) {
	s.filters = append([]core.FilterPredicate(nil), preds...)
}

// Metadata implements SQLSource. It is read once and cached.
func (s *SQL) Metadata(ctx context.Context) (*core.TableMetadata, error) {
	if s.meta == nil && s.metaErr == nil {
		s.meta, s.metaErr = s.adp.GetTableMetadata(ctx, s.table)
		if s.metaErr != nil {
			s.metaErr = fmt.Errorf("source %s: %w", s.name, s.metaErr)
		}
	}
	return s.meta, s.metaErr
}

// SelectSQL renders the query Materialize will run. Predicates that SQL
// cannot evaluate the way generated code does are left out; the code
// applies them to the rows it receives.
func (s *SQL) SelectSQL(ctx context.Context) (string, error) {
	d := s.adp.Dialect()
	query := "SELECT * FROM " + d.QuoteIdentifier(s.table)
	if len(s.filters) == 0 {
		return query, nil
	}

	columns := map[string]*core.Column{}
	meta, err := s.Metadata(ctx)
	if err != nil {
		s.logger.Debug("no column metadata, pushing null tests and equality only",
			slog.String("source", s.name), slog.String("error", err.Error()))
	} else {
		for i := range meta.Columns {
			columns[meta.Columns[i].Name] = &meta.Columns[i]
		}
	}

	var conds []string
	for _, p := range s.filters {
		cond, ok, err := renderPredicate(d, p, columns[p.Column])
		if err != nil {
			return "", fmt.Errorf("source %s: %w", s.name, err)
		}
		if !ok {
			s.logger.Debug("predicate not pushed down", slog.String("source", s.name), slog.String("predicate", p.String()))
			continue
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		return query, nil
	}
	return query + " WHERE " + strings.Join(conds, " AND "), nil
}

// Materialize implements DataSource.
func (s *SQL) Materialize(ctx context.Context) (*frame.Table, error) {
	query, err := s.SelectSQL(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("materializing source", slog.String("source", s.name), slog.String("sql", query))
	t, err := s.adp.QueryTable(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}
	s.view = t
	return t, nil
}

// RawView implements DataSource.
func (s *SQL) RawView() *frame.Table { return s.view }

// QueryTable implements SQLSource.
func (s *SQL) QueryTable(ctx context.Context, sql string) (*frame.Table, error) {
	return s.adp.QueryTable(ctx, sql)
}

// Equals implements DataSource: same adapter kind and connection credentials.
func (s *SQL) Equals(other DataSource) bool {
	o, ok := other.(*SQL)
	return ok && o.Kind() == s.Kind() && s.adp.Config().SameConnection(o.adp.Config())
}
