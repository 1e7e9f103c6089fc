package adapter

import (
	"fmt"
	"strings"
)

// Dialect holds the SQL syntax settings an adapter needs to build queries.
type Dialect struct {
	// Name is the adapter kind, e.g. "duckdb".
	Name string
	// DefaultSchema is used for unqualified table names.
	DefaultSchema string
	// NumberedPlaceholders selects $1 style placeholders instead of ?.
	NumberedPlaceholders bool
	// BinaryCollation is the COLLATE argument that compares text byte by
	// byte. Empty when the engine has none it can be relied on for.
	BinaryCollation string
	// DynamicTypes is set when a column may hold values of any type
	// regardless of its declared type.
	DynamicTypes bool
}

// FormatPlaceholder returns the bind placeholder for the n-th (1-based) argument.
func (d *Dialect) FormatPlaceholder(n int) string {
	if d.NumberedPlaceholders {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// QuoteIdentifier quotes each dot-separated part of an identifier.
func (d *Dialect) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// QuoteLiteral renders a Go literal as SQL. Strings are single-quoted with
// embedded quotes doubled.
func (d *Dialect) QuoteLiteral(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	}
	return "", fmt.Errorf("cannot render %T as a SQL literal", v)
}
