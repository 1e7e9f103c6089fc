package core

import (
	"regexp"
	"slices"
)

// Reserved names shared by the sanitizer, the analyzers and the executor.
const (
	// DataBinding is the global holding the data sources, one entry per source.
	DataBinding = "dfs"
	// ComputeFunction is the function generated code defines to compute the answer.
	ComputeFunction = "analyze_data"
	// ResultBinding is the global a successful run must leave behind.
	ResultBinding = "result"
	// SQLFunction is the host function that runs raw SQL in direct-SQL mode.
	SQLFunction = "execute_sql_query"
	// FrameModule is the always-available tabular library.
	FrameModule = "frame"
)

// DefaultLibraries are the library roots generated code may load.
var DefaultLibraries = []string{"chart", "json", "math", "stats", "time"}

// SafeBuiltins are the universe names left callable in the execution context.
var SafeBuiltins = []string{
	"None", "True", "False",
	"abs", "all", "any", "bool", "bytes", "chr", "dict", "enumerate", "fail",
	"float", "hash", "int", "len", "list", "max", "min", "ord", "print",
	"range", "repr", "reversed", "set", "sorted", "str", "tuple", "type", "zip",
}

// IsSafeBuiltin reports whether name is in SafeBuiltins.
func IsSafeBuiltin(name string) bool {
	return slices.Contains(SafeBuiltins, name)
}

// ExportMethods are table methods that would write data outside the engine.
var ExportMethods = []string{
	"to_csv", "to_excel", "to_json", "to_sql", "to_feather", "to_hdf",
	"to_parquet", "to_pickle", "to_gbq", "to_stata", "to_records",
	"to_string", "to_latex", "to_html", "to_markdown", "to_clipboard",
}

// ReflectionTokens are identifiers that reach outside the language sandbox.
var ReflectionTokens = []string{"__subclasses__", "__builtins__", "__import__"}

var sqlVariable = regexp.MustCompile(`^(sql|query|sql_query|\w+_query|\w+_sql)$`)

// IsSQLVariable reports whether name follows the naming convention for
// variables holding SQL text.
func IsSQLVariable(name string) bool {
	return sqlVariable.MatchString(name)
}
