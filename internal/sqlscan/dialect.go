package sqlscan

import "strings"

// Dialect holds the lexical rules that differ between SQL engines. Two
// engines that disagree on where a string or identifier ends can disagree on
// which tables a query reads, so every engine a query may run on needs its
// own rules.
type Dialect struct {
	Name string
	// BracketIdentifiers lexes [name] as a quoted identifier.
	BracketIdentifiers bool
	// EscapeStrings lexes E'...' with backslash escapes.
	EscapeStrings bool
	// DollarQuoting lexes $$...$$ and $tag$...$tag$ as strings.
	DollarQuoting bool
	// OnlyModifier reads ONLY before a table name as a modifier, not a name.
	OnlyModifier bool
	// DefaultSchemas are the schemas an unqualified name resolves to.
	DefaultSchemas []string
}

// Built-in dialects.
var (
	ANSI = &Dialect{Name: "ansi"}

	SQLite = &Dialect{
		Name:               "sqlite",
		BracketIdentifiers: true,
		DefaultSchemas:     []string{"main"},
	}

	Postgres = &Dialect{
		Name:           "postgres",
		EscapeStrings:  true,
		DollarQuoting:  true,
		OnlyModifier:   true,
		DefaultSchemas: []string{"public"},
	}

	DuckDB = &Dialect{
		Name:           "duckdb",
		EscapeStrings:  true,
		DollarQuoting:  true,
		OnlyModifier:   true,
		DefaultSchemas: []string{"main"},
	}
)

var dialects = map[string]*Dialect{
	"ansi":     ANSI,
	"sqlite":   SQLite,
	"sqlite3":  SQLite,
	"postgres": Postgres,
	"duckdb":   DuckDB,
}

// LookupDialect returns the dialect registered for an adapter type.
func LookupDialect(name string) (*Dialect, bool) {
	d, ok := dialects[strings.ToLower(name)]
	return d, ok
}

// isDefaultSchema reports whether schema is one unqualified names resolve to.
func (d *Dialect) isDefaultSchema(schema string) bool {
	for _, s := range d.DefaultSchemas {
		if strings.EqualFold(s, schema) {
			return true
		}
	}
	return false
}
