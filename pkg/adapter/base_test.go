package adapter

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseSQLAdapter_Exec(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		errMsg    string
	}{
		{
			name:   "exec without connection",
			sql:    "SELECT 1",
			errMsg: "database connection not established",
		},
		{
			name:    "exec success",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE orders").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			sql: "CREATE TABLE orders (id INT)",
		},
		{
			name:    "exec with error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)
			},
			sql:    "INVALID SQL",
			errMsg: "failed to execute SQL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}
			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()
				tt.setupMock(mock)
				base.DB = db
			}

			err := base.Exec(context.Background(), tt.sql)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBaseSQLAdapter_QueryTable(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		wantRows  int
		errMsg    string
	}{
		{
			name:   "query without connection",
			errMsg: "database connection not established",
		},
		{
			name:    "rows are collected",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "name", "price"}).
					AddRow(int64(1), "keyboard", 49.5).
					AddRow(int64(2), []byte("mouse"), nil)
				mock.ExpectQuery("SELECT").WillReturnRows(rows)
			},
			wantRows: 2,
		},
		{
			name:    "query error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)
			},
			errMsg: "failed to execute query",
		},
		{
			name:    "row error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).RowError(0, assert.AnError)
				mock.ExpectQuery("SELECT").WillReturnRows(rows)
			},
			errMsg: "error iterating rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}
			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()
				tt.setupMock(mock)
				base.DB = db
			}

			tbl, err := base.QueryTable(context.Background(), "SELECT * FROM products")
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, tbl.Len())
			name, err := tbl.Value(1, "name")
			require.NoError(t, err)
			assert.Equal(t, "mouse", name, "byte slices become strings")
		})
	}
}

func TestBaseSQLAdapter_GetTableMetadataCommon(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	d := &Dialect{Name: "postgres", DefaultSchema: "public", NumberedPlaceholders: true}
	mock.ExpectQuery(`information_schema.columns`).
		WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal_position"}).
			AddRow("id", "integer", "NO", 1).
			AddRow("customer", "text", "YES", 2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "public"."orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	base := &BaseSQLAdapter{DB: db}
	meta, err := base.GetTableMetadataCommon(context.Background(), "orders", d)
	require.NoError(t, err)
	assert.Equal(t, "public", meta.Schema)
	assert.Equal(t, int64(5), meta.RowCount)
	require.Len(t, meta.Columns, 2)
	assert.False(t, meta.Columns[0].Nullable)
	assert.True(t, meta.Columns[1].Nullable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_CloseAndConfig(t *testing.T) {
	base := &BaseSQLAdapter{}
	assert.NoError(t, base.Close(), "closing an unconnected adapter is a no-op")
	assert.False(t, base.IsConnected())

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	base.DB = db
	base.Cfg.Type = "duckdb"
	assert.True(t, base.IsConnected())
	assert.Equal(t, "duckdb", base.Config().Type)
	assert.NoError(t, base.Close())
}

func TestDialect(t *testing.T) {
	pg := &Dialect{Name: "postgres", DefaultSchema: "public", NumberedPlaceholders: true}
	duck := &Dialect{Name: "duckdb", DefaultSchema: "main"}

	assert.Equal(t, "$2", pg.FormatPlaceholder(2))
	assert.Equal(t, "?", duck.FormatPlaceholder(2))
	assert.Equal(t, `"sales"."order ""items"""`, duck.QuoteIdentifier(`sales.order "items"`))

	schema, name := ParseQualifiedName("orders", duck)
	assert.Equal(t, "main", schema)
	assert.Equal(t, "orders", name)

	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{true, "TRUE"},
		{int64(3), "3"},
		{2.5, "2.5"},
		{"O'Brien", "'O''Brien'"},
	}
	for _, tt := range tests {
		got, err := duck.QuoteLiteral(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := duck.QuoteLiteral([]int{1})
	assert.Error(t, err)
}
