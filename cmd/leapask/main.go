// Package main provides the leapask CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapask/internal/cli"

	// Register the SQL adapters connections may use.
	_ "github.com/leapstack-labs/leapask/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapask/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapask/pkg/adapters/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
