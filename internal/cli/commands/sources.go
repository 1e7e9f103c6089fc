package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/frame"
	"github.com/leapstack-labs/leapask/pkg/source"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentCounts bounds the row counts run at once.
const maxConcurrentCounts = 4

// NewSourcesCommand creates the sources command.
func NewSourcesCommand() *cobra.Command {
	var counts, columns bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured data sources",
		Long: `List the data sources generated code sees, in dfs order.

With --count every source is opened and its rows counted. With --columns
every source is opened and its columns listed, with their declared types
for database tables.`,
		Example: `  leapask sources
  leapask sources --count --columns -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSources(cmd, describeOptions{counts: counts, columns: columns})
		},
	}
	cmd.Flags().BoolVar(&counts, "count", false, "Count rows in each source")
	cmd.Flags().BoolVar(&columns, "columns", false, "List the columns of each source")
	return cmd
}

type sourceInfo struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
	Kind  string `json:"kind" yaml:"kind"`
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
	Rows    *int         `json:"rows,omitempty" yaml:"rows,omitempty"`
	Columns []columnInfo `json:"columns,omitempty" yaml:"columns,omitempty"`
}

type columnInfo struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Nullable bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
}

func (c columnInfo) String() string {
	if c.Type == "" {
		return c.Name
	}
	return c.Name + " " + c.Type
}

type describeOptions struct {
	counts, columns bool
}

func runSources(cmd *cobra.Command, opts describeOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	var infos []sourceInfo
	if opts.counts || opts.columns {
		rt, err := OpenRuntime(cmd.Context(), cmdCtx.Cfg, RuntimeOptions{NoAudit: true}, cmdCtx.Logger)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		infos, err = describeSources(cmd.Context(), rt.Sources, opts)
		if err != nil {
			return err
		}
	} else {
		for i, s := range cmdCtx.Cfg.Sources {
			info := sourceInfo{Index: i, Name: s.Name, Kind: "csv", Table: s.Table}
			if s.Connection != "" {
				if conn := cmdCtx.Cfg.Connections[s.Connection]; conn != nil {
					info.Kind = conn.AdapterConfig().Type
				}
				if info.Table == "" {
					info.Table = s.Name
				}
			}
			infos = append(infos, info)
		}
	}

	r := cmdCtx.Renderer
	if ok, err := r.Encode(infos); ok {
		return err
	}
	if len(infos) == 0 {
		r.Println("No sources configured.")
		return nil
	}

	header := []string{"index", "name", "kind", "table"}
	if opts.counts {
		header = append(header, "rows")
	}
	if opts.columns {
		header = append(header, "columns")
	}
	rows := make([][]any, len(infos))
	for i, info := range infos {
		row := []any{info.Index, info.Name, info.Kind, info.Table}
		if opts.counts {
			row = append(row, *info.Rows)
		}
		if opts.columns {
			names := make([]string, len(info.Columns))
			for j, c := range info.Columns {
				names[j] = c.String()
			}
			row = append(row, strings.Join(names, ", "))
		}
		rows[i] = row
	}
	return r.Table(header, rows)
}

// describeSources opens every source concurrently, counting its rows and
// reading its columns as opts asks.
func describeSources(ctx context.Context, sources []source.DataSource, opts describeOptions) ([]sourceInfo, error) {
	infos := make([]sourceInfo, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCounts)

	for i, s := range sources {
		infos[i] = sourceInfo{Index: i, Name: s.Name(), Kind: "memory"}
		if sql, ok := s.(source.SQLSource); ok {
			infos[i].Kind = sql.Kind()
			infos[i].Table = sql.TableName()
		}
		g.Go(func() error {
			if opts.counts {
				n, err := countRows(gctx, s)
				if err != nil {
					return err
				}
				infos[i].Rows = &n
			}
			if opts.columns {
				cols, err := sourceColumns(gctx, s)
				if err != nil {
					return err
				}
				infos[i].Columns = cols
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

func countRows(ctx context.Context, s source.DataSource) (int, error) {
	sql, ok := s.(source.SQLSource)
	if !ok {
		t, err := s.Materialize(ctx)
		if err != nil {
			return 0, err
		}
		return t.Len(), nil
	}

	t, err := sql.QueryTable(ctx, "SELECT COUNT(*) AS n FROM "+sql.Dialect().QuoteIdentifier(sql.TableName()))
	if err != nil {
		return 0, fmt.Errorf("source %s: %w", s.Name(), err)
	}
	return countValue(t)
}

func countValue(t *frame.Table) (int, error) {
	v, err := t.Value(0, "n")
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("unexpected count %v (%T)", v, v)
}

// sourceColumns reads a database table's columns from its metadata and an
// in-memory table's from its header.
func sourceColumns(ctx context.Context, s source.DataSource) ([]columnInfo, error) {
	if sql, ok := s.(source.SQLSource); ok {
		meta, err := sql.Metadata(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]columnInfo, len(meta.Columns))
		for i, c := range meta.Columns {
			out[i] = columnInfo{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
		}
		return out, nil
	}

	t, err := s.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]columnInfo, 0, len(t.Columns()))
	for _, name := range t.Columns() {
		out = append(out, columnInfo{Name: name})
	}
	return out, nil
}
